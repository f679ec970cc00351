package audiograph

import (
	"errors"

	"github.com/cbegin/audiograph-go/internal/automation"
	"github.com/cbegin/audiograph-go/internal/compose"
	"github.com/cbegin/audiograph-go/internal/export"
	"github.com/cbegin/audiograph-go/internal/graph"
	"github.com/cbegin/audiograph-go/internal/samples"
)

// Errors surfaced by rendering and its collaborators. They are aliases so
// errors.As works against the root package.
type (
	AssetFetchError        = samples.AssetFetchError
	AssetDecodeError       = samples.AssetDecodeError
	GraphCycleError        = graph.CycleError
	InvalidAutomationError = automation.InvalidAutomationError
	InvalidExportNameError = export.InvalidExportNameError
	ValidationError        = compose.ValidationError
)

var (
	ErrAssetFetch        = samples.ErrAssetFetch
	ErrAssetDecode       = samples.ErrAssetDecode
	ErrGraphCycle        = graph.ErrCycle
	ErrInvalidAutomation = automation.ErrInvalidAutomation
	ErrInvalidExportName = export.ErrInvalidExportName
	ErrUnknownScene      = compose.ErrUnknownScene

	ErrNotRendered = errors.New("scene has not been rendered")
)
