// Package mocks provides mock implementations for testing the investigation engine.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the ports in
// internal/core. The mocks provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockInvestigationRepository(ctrl)
//	mockRepo.EXPECT().GetByID(gomock.Any(), "inv-1").Return(inv, nil)
package mocks

// Generate mock for InvestigationRepository interface from internal/core package.
// This creates MockInvestigationRepository with methods for all InvestigationRepository interface methods:
// Create, GetByID, GetExecution, List, MarkRunning, UpdateExecution, Finalize, SaveReport, GetReport
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=investigation_repository_mock.go github.com/target/mmk-investigations/internal/core InvestigationRepository

// Generate mock for InvestigationReaperRepository interface from internal/core package.
// This creates MockInvestigationReaperRepository with methods for all InvestigationReaperRepository interface methods:
// FailStale
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=investigation_reaper_repository_mock.go github.com/target/mmk-investigations/internal/core InvestigationReaperRepository

// Generate mock for IntentParser interface from internal/core package.
// This creates MockIntentParser with methods for all IntentParser interface methods:
// ParseIntent
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=intent_parser_mock.go github.com/target/mmk-investigations/internal/core IntentParser

// Generate mock for ReportGenerator interface from internal/core package.
// This creates MockReportGenerator with methods for all ReportGenerator interface methods:
// GenerateReport
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=report_generator_mock.go github.com/target/mmk-investigations/internal/core ReportGenerator

// Generate mock for ProgressRelay interface from internal/core package.
// This creates MockProgressRelay with methods for all ProgressRelay interface methods:
// Publish, Subscribe
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=progress_relay_mock.go github.com/target/mmk-investigations/internal/core ProgressRelay
