package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvestigationStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to InvestigationStatus
		want     bool
	}{
		{InvestigationStatusPending, InvestigationStatusRunning, true},
		{InvestigationStatusPending, InvestigationStatusFailed, true},
		{InvestigationStatusPending, InvestigationStatusCompleted, false},
		{InvestigationStatusRunning, InvestigationStatusCompleted, true},
		{InvestigationStatusRunning, InvestigationStatusFailed, true},
		{InvestigationStatusRunning, InvestigationStatusPending, false},
		{InvestigationStatusCompleted, InvestigationStatusFailed, false},
		{InvestigationStatusFailed, InvestigationStatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestExecutionStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, ExecutionStatusPending.CanTransitionTo(ExecutionStatusRunning))
	assert.True(t, ExecutionStatusPending.CanTransitionTo(ExecutionStatusSkipped))
	assert.True(t, ExecutionStatusPending.CanTransitionTo(ExecutionStatusSuccess))
	assert.True(t, ExecutionStatusRunning.CanTransitionTo(ExecutionStatusFailed))
	assert.False(t, ExecutionStatusRunning.CanTransitionTo(ExecutionStatusPending))
	assert.False(t, ExecutionStatusSuccess.CanTransitionTo(ExecutionStatusFailed))
	assert.False(t, ExecutionStatusSkipped.CanTransitionTo(ExecutionStatusRunning))
}

func TestDepthUnmarshalText(t *testing.T) {
	tests := map[string]Depth{
		"shallow":  DepthShallow,
		" QUICK ":  DepthShallow,
		"standard": DepthMedium,
		"medium":   DepthMedium,
		"thorough": DepthDeep,
		"Deep":     DepthDeep,
	}
	for in, want := range tests {
		var d Depth
		require.NoError(t, d.UnmarshalText([]byte(in)), in)
		assert.Equal(t, want, d, in)
	}

	var d Depth
	require.Error(t, d.UnmarshalText([]byte("bottomless")))
	assert.Equal(t, DepthMedium, Depth("").OrDefault())
	assert.Less(t, DepthShallow.Rank(), DepthMedium.Rank())
	assert.Less(t, DepthMedium.Rank(), DepthDeep.Rank())
}

func TestInvestigationStatusUnmarshalJSON(t *testing.T) {
	var s struct {
		Status InvestigationStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":" Running "}`), &s))
	assert.Equal(t, InvestigationStatusRunning, s.Status)
	require.Error(t, json.Unmarshal([]byte(`{"status":"paused"}`), &s))
}

func TestTargetNormalize(t *testing.T) {
	got := Target{
		Username: "  @alice ",
		Email:    "Alice@Example.COM",
		Domain:   " Example.com",
		Hashtag:  "#osint",
		Notes:    "  context ",
	}.Normalize()

	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "example.com", got.Domain)
	assert.Equal(t, "osint", got.Hashtag)
	assert.Equal(t, "context", got.Notes)
}

func TestTargetFields(t *testing.T) {
	assert.True(t, Target{Notes: "only notes"}.IsEmpty())
	assert.True(t, Target{Username: "   "}.IsEmpty())

	tgt := Target{Username: "alice", Domain: "example.com"}
	assert.False(t, tgt.IsEmpty())
	assert.True(t, tgt.Has(TargetDomain))
	assert.False(t, tgt.Has(TargetEmail))
	assert.Equal(t, map[TargetField]string{TargetUsername: "alice", TargetDomain: "example.com"}, tgt.Fields())
	assert.Equal(t, "alice", tgt.Primary())
	assert.Equal(t, "Jane Doe", Target{Name: "Jane Doe", Username: "jd"}.Primary())
}

func TestIntentNormalize(t *testing.T) {
	in := Intent{
		Type:      " Profile ",
		Target:    Target{Username: "@bob"},
		Platforms: []string{"TikTok", " tiktok", "", "Instagram"},
	}.Normalize()

	assert.Equal(t, RequestTypeProfile, in.Type)
	assert.Equal(t, "bob", in.Target.Username)
	assert.Equal(t, []string{"tiktok", "instagram"}, in.Platforms)
	assert.Equal(t, DepthMedium, in.Depth)
}

func TestIntentNormalizeInfersType(t *testing.T) {
	tests := []struct {
		target Target
		want   RequestType
	}{
		{Target{Username: "x"}, RequestTypeProfile},
		{Target{Domain: "example.com"}, RequestTypeDomain},
		{Target{Email: "a@b.c"}, RequestTypeEmail},
		{Target{IPAddress: "10.0.0.1"}, RequestTypeNetwork},
		{Target{EthereumAddress: "0xabc"}, RequestTypeCrypto},
		{Target{Name: "Jane"}, RequestTypePerson},
		{Target{Custom: "???"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Intent{Target: tt.target}.Normalize().Type, "%+v", tt.target)
	}
}

func TestIntentValidate(t *testing.T) {
	require.ErrorIs(t, Intent{Target: Target{Notes: "x"}}.Validate(), ErrNoUsableTarget)
	require.Error(t, Intent{Target: Target{Username: "x"}, Depth: "huge"}.Validate())
	require.NoError(t, Intent{Target: Target{Username: "x"}}.Validate())
	assert.False(t, RequestType("astrology").Known())
	assert.True(t, RequestTypeCrypto.Known())
}

func TestStartInvestigationRequestValidate(t *testing.T) {
	ok := StartInvestigationRequest{Query: "find @alice"}
	require.NoError(t, ok.Validate())

	withTarget := StartInvestigationRequest{Target: &Target{Domain: "example.com"}, Depth: DepthDeep}
	require.NoError(t, withTarget.Validate())

	empty := StartInvestigationRequest{Target: &Target{}}
	require.Error(t, empty.Validate())

	badDepth := StartInvestigationRequest{Query: "x", Depth: "huge"}
	require.Error(t, badDepth.Validate())
}

func TestCallbackPayload(t *testing.T) {
	p := CallbackPayload{Capability: " sherlock ", Status: ExecutionStatusFailed, Metrics: &CallbackMetrics{Duration: 2.25}}
	require.NoError(t, p.Validate())
	assert.Equal(t, "sherlock", p.Capability)

	res := p.Result()
	assert.Equal(t, ResultFailed, res.Status)
	assert.Equal(t, ErrorClassCapability, res.ErrorClass)
	assert.Equal(t, "capability reported failure", res.Error)
	assert.Equal(t, int64(2250), res.Metrics.DurationMs)
	assert.Equal(t, ExecutionStatusFailed, res.ExecutionStatus())

	ok := CallbackPayload{Capability: "sherlock", Status: ExecutionStatusSuccess, Data: json.RawMessage(`{"a":1}`)}
	require.NoError(t, ok.Validate())
	assert.Equal(t, ResultSuccess, ok.Result().Status)

	skipped := CallbackPayload{Capability: "sherlock", Status: ExecutionStatusSkipped}
	require.Error(t, skipped.Validate())
}

func TestCallbackPayloadDurationBounds(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		wantErr  bool
	}{
		{name: "zero", duration: 0},
		{name: "one day", duration: MaxCallbackDurationSeconds},
		{name: "negative", duration: -1, wantErr: true},
		{name: "over one day", duration: MaxCallbackDurationSeconds + 1, wantErr: true},
		{name: "beyond int64 milliseconds", duration: 1e17, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := CallbackPayload{Capability: "sherlock", Status: ExecutionStatusSuccess, Metrics: &CallbackMetrics{Duration: tt.duration}}
			err := p.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "metrics.duration")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(tt.duration*1000), p.Result().Metrics.DurationMs)
		})
	}
}

func TestPlanSummary(t *testing.T) {
	p := Plan{
		Entries: []PlanEntry{
			{Capability: "tiktok-profile-analyzer"},
			{Capability: "sherlock"},
		},
		EstimatedTime: 1400 * time.Millisecond,
		Strategy:      "profile",
	}
	s := p.Summary()
	assert.Equal(t, []string{"tiktok-profile-analyzer", "sherlock"}, s.Capabilities)
	assert.Equal(t, 1, s.EstimatedSeconds)
	assert.Equal(t, "profile", s.Strategy)
}

func TestTerminalEventFor(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ref := "/api/investigations/inv-1/report"

	completed := &Investigation{
		ID:        "inv-1",
		Status:    InvestigationStatusCompleted,
		ReportRef: &ref,
		Executions: []ExecutionRecord{
			{Status: ExecutionStatusSuccess},
			{Status: ExecutionStatusFailed},
		},
	}
	ev := TerminalEventFor(completed, now)
	assert.Equal(t, ProgressCompleted, ev.Kind)
	assert.True(t, ev.Completed)
	assert.True(t, ev.Replay)
	assert.Equal(t, 100, ev.Percent)
	assert.Equal(t, ref, ev.ReportRef)
	assert.Equal(t, now, ev.Timestamp)
	assert.True(t, ev.Kind.IsTerminal())

	failed := &Investigation{
		ID:      "inv-2",
		Status:  InvestigationStatusFailed,
		Summary: json.RawMessage(`{"error":"all capabilities failed"}`),
		Executions: []ExecutionRecord{
			{Status: ExecutionStatusFailed},
			{Status: ExecutionStatusSkipped},
			{Status: ExecutionStatusRunning},
			{Status: ExecutionStatusPending},
		},
	}
	ev = TerminalEventFor(failed, now)
	assert.Equal(t, ProgressFailed, ev.Kind)
	assert.False(t, ev.Completed)
	assert.Equal(t, 50, ev.Percent)
	assert.Equal(t, "all capabilities failed", ev.Error)
	assert.False(t, ProgressCapabilityCompleted.IsTerminal())
}
