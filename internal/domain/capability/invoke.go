package capability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/target/mmk-investigations/internal/domain/model"
)

// Invoke runs the named capability through the fault boundary. The only error it returns is
// ErrNotFound; every executor fault is converted into a failed result.
func (r *Registry) Invoke(ctx context.Context, name string, in model.CapabilityInput) (model.CapabilityResult, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return model.CapabilityResult{}, err
	}
	return SafeExecute(ctx, d, in), nil
}

// SafeExecute invokes d.Executor bounded by d.Timeout. Errors, panics, timeouts and
// cancellation all come back as a ResultFailed carrying an error class. An executor that
// ignores its context is abandoned once the deadline passes.
func SafeExecute(ctx context.Context, d Descriptor, in model.CapabilityInput) model.CapabilityResult {
	start := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	done := make(chan model.CapabilityResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- failed(model.ErrorClassPanic, fmt.Sprintf("capability %s panicked: %v", d.Name, rec))
			}
		}()
		res, err := d.Executor.Execute(execCtx, in)
		if err != nil {
			done <- fromError(ctx, execCtx, d, err)
			return
		}
		done <- normalize(res)
	}()

	var res model.CapabilityResult
	select {
	case res = <-done:
	case <-execCtx.Done():
		// Prefer a result that raced with the deadline.
		select {
		case res = <-done:
		default:
			res = fromError(ctx, execCtx, d, execCtx.Err())
		}
	}
	if res.Metrics.DurationMs == 0 && res.Status != model.ResultDeferred {
		res.Metrics.DurationMs = time.Since(start).Milliseconds()
	}
	return res
}

func fromError(parent, execCtx context.Context, d Descriptor, err error) model.CapabilityResult {
	switch {
	case parent.Err() != nil:
		return failed(model.ErrorClassCanceled, fmt.Sprintf("capability %s canceled: %v", d.Name, parent.Err()))
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return failed(model.ErrorClassTimeout, fmt.Sprintf("capability %s timed out after %s", d.Name, d.Timeout))
	default:
		return failed(model.ErrorClassCapability, err.Error())
	}
}

func failed(class, msg string) model.CapabilityResult {
	return model.CapabilityResult{Status: model.ResultFailed, Error: msg, ErrorClass: class}
}

func normalize(res model.CapabilityResult) model.CapabilityResult {
	switch res.Status {
	case "":
		res.Status = model.ResultSuccess
	case model.ResultSuccess, model.ResultDeferred:
	case model.ResultFailed:
		if res.Error == "" {
			res.Error = "capability failed"
		}
		if res.ErrorClass == "" {
			res.ErrorClass = model.ErrorClassCapability
		}
	default:
		return failed(model.ErrorClassCapability, fmt.Sprintf("unknown result status %q", res.Status))
	}
	if res.Confidence != nil {
		c := *res.Confidence
		if c < 0 {
			c = 0
		} else if c > 1 {
			c = 1
		}
		res.Confidence = &c
	}
	return res
}
