package usecase

import (
	"context"

	"sigqueue/internal/domain"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

var poisonNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sigqueue:poison"))

// PoisonID is stable for a worker and raw entry, so replaying a staged entry
// records the same message again instead of a new one.
func PoisonID(workerID, raw string) string {
	return uuid.NewSHA1(poisonNamespace, []byte(workerID+"\n"+raw)).String()
}

// PoisonSinks fans a poison message out to every sink. The message counts
// as recorded only when all sinks accepted it.
type PoisonSinks []PoisonSink

func (s PoisonSinks) Record(ctx context.Context, msg domain.PoisonMessage) error {
	var result *multierror.Error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, msg); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
