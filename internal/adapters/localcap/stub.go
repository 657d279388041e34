// Package localcap provides in-process stand-ins for catalog capabilities. Results are
// derived from a hash of the invocation so repeated runs for the same target agree.
package localcap

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
)

var subdomainPrefixes = []string{"www", "mail", "api", "dev", "staging", "vpn", "cdn", "shop"}

var usernameSites = []string{"github", "reddit", "twitter", "instagram", "tiktok", "twitch", "medium", "pinterest"}

// Stub is a deterministic executor for one capability category.
type Stub struct {
	Category string
	// Delay simulates work. The stub returns early when ctx is done.
	Delay time.Duration
}

var _ capability.Executor = Stub{}

// For returns a stub for the descriptor's category.
func For(d capability.Descriptor, delay time.Duration) Stub {
	return Stub{Category: d.Category, Delay: delay}
}

// Execute produces a synthetic result for in.
func (s Stub) Execute(ctx context.Context, in model.CapabilityInput) (model.CapabilityResult, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return model.CapabilityResult{}, ctx.Err()
		case <-t.C:
		}
	}

	seed := seedOf(in)
	var data map[string]any
	switch s.Category {
	case capability.CategorySocial:
		u := in.Params[string(model.TargetUsername)]
		data = map[string]any{
			"username":  u,
			"followers": seed % 1000000,
			"following": (seed >> 20) % 2000,
			"posts":     (seed >> 31) % 1000,
			"verified":  seed%10 == 0,
			"bio":       "Bio for " + u,
		}
	case capability.CategoryUsername:
		data = map[string]any{"accounts": pick(usernameSites, seed)}
	case capability.CategoryDomain:
		d := in.Params[string(model.TargetDomain)]
		subs := pick(subdomainPrefixes, seed)
		for i := range subs {
			subs[i] = subs[i] + "." + d
		}
		data = map[string]any{"domain": d, "subdomains": subs}
	default:
		data = map[string]any{"matches": seed % 25}
	}
	data["capability"] = in.Capability
	data["params"] = in.Params

	b, err := json.Marshal(data)
	if err != nil {
		return model.CapabilityResult{}, fmt.Errorf("encode stub result: %w", err)
	}
	conf := 0.5 + float64(seed%46)/100
	return model.CapabilityResult{Status: model.ResultSuccess, Data: b, Confidence: &conf}, nil
}

func seedOf(in model.CapabilityInput) uint64 {
	keys := make([]string, 0, len(in.Params))
	for k := range in.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	_, _ = h.Write([]byte(in.Capability))
	for _, k := range keys {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{'='})
		_, _ = h.Write([]byte(in.Params[k]))
	}
	return h.Sum64()
}

// pick selects a seed-dependent, non-empty subset of items in their original order.
func pick(items []string, seed uint64) []string {
	out := make([]string, 0, len(items))
	for i, it := range items {
		if seed&(1<<uint(i)) != 0 {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		out = append(out, items[seed%uint64(len(items))])
	}
	return out
}
