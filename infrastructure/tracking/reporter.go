// Package tracking reports batch run progress to logs and counters.
package tracking

import (
	"context"

	"github.com/helixml/filegraph/domain/batch"
)

// Reporter receives progress changes.
type Reporter interface {
	OnChange(ctx context.Context, progress batch.Progress) error
}
