// Package service ties the contract gateway to the submission journal and
// user notifications.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/gateway"
	"github.com/smartdevs17/coinwatch-gateway/internal/models"
	"github.com/smartdevs17/coinwatch-gateway/internal/storage"
	"github.com/smartdevs17/coinwatch-gateway/pkg/coinaddr"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// Notifier presents outcomes to the user
type Notifier interface {
	Info(ctx context.Context, title, message string, data map[string]interface{}) error
	Error(ctx context.Context, title, message string, data map[string]interface{}) error
}

// Submitter is the part of the gateway the service drives
type Submitter interface {
	Contract() common.Address
	WatchAddress(ctx context.Context, address string, onAccepted func(*gateway.Receipt)) (*gateway.Receipt, error)
	SetReceivedByAddress(ctx context.Context, addressHex string, value uint64, onAccepted func(*gateway.Receipt)) (*gateway.Receipt, error)
}

// WatchService submits contract commands, journals them and reports the
// outcome. The journal is optional.
type WatchService struct {
	gateway  Submitter
	journal  storage.Storage
	notifier Notifier
	logger   *logrus.Entry
	pending  sync.WaitGroup

	// acceptance callbacks write with this timeout, detached from the request
	acceptTimeout time.Duration
}

// NewWatchService creates a watch service. journal may be nil.
func NewWatchService(gw Submitter, journal storage.Storage, notifier Notifier) *WatchService {
	return &WatchService{
		gateway:       gw,
		journal:       journal,
		notifier:      notifier,
		logger:        utils.ComponentLogger("watch_service"),
		acceptTimeout: 10 * time.Second,
	}
}

// Watch asks the contract to watch address. Decode failures are reported to
// the user and returned without submitting anything. On success the
// submission is journaled and, once the node accepts it, marked accepted and
// announced.
func (s *WatchService) Watch(ctx context.Context, address string) (*models.WatchSubmission, error) {
	return s.submit(ctx, models.SubmissionKindWatch, address, func(onAccepted func(*gateway.Receipt)) (*gateway.Receipt, error) {
		return s.gateway.WatchAddress(ctx, address, onAccepted)
	})
}

// UpdateReceived stores the received amount of a watched address
func (s *WatchService) UpdateReceived(ctx context.Context, entry *models.WatchListEntry, value uint64) (*models.WatchSubmission, error) {
	return s.submit(ctx, models.SubmissionKindUpdate, entry.Address, func(onAccepted func(*gateway.Receipt)) (*gateway.Receipt, error) {
		return s.gateway.SetReceivedByAddress(ctx, entry.AddressHex, value, onAccepted)
	})
}

type submitFunc func(onAccepted func(*gateway.Receipt)) (*gateway.Receipt, error)

func (s *WatchService) submit(ctx context.Context, kind models.SubmissionKind, address string, send submitFunc) (*models.WatchSubmission, error) {
	id := uuid.NewString()
	saved := make(chan struct{})

	s.pending.Add(1)
	receipt, err := send(func(r *gateway.Receipt) {
		defer s.pending.Done()
		<-saved
		s.accepted(id, kind, r)
	})
	if err != nil {
		s.pending.Done()
		close(saved)
		s.failed(ctx, kind, address, err)
		return nil, err
	}

	submission := &models.WatchSubmission{
		ID:         id,
		Kind:       kind,
		Contract:   receipt.Contract.Hex(),
		Address:    receipt.Address,
		AddressHex: receipt.AddressHex,
		TxHash:     receipt.TxHash.Hex(),
		Status:     models.SubmissionStatusSubmitted,
		CreatedAt:  receipt.SubmittedAt,
	}

	if s.journal != nil {
		if err := s.journal.SaveSubmission(ctx, submission); err != nil {
			// the transaction is already out; keep going
			s.logger.WithError(err).WithField("tx_hash", submission.TxHash).Error("Failed to journal submission")
		}
	}
	close(saved)

	return submission, nil
}

func (s *WatchService) accepted(id string, kind models.SubmissionKind, r *gateway.Receipt) {
	ctx, cancel := context.WithTimeout(context.Background(), s.acceptTimeout)
	defer cancel()

	if s.journal != nil {
		if err := s.journal.MarkSubmissionAccepted(ctx, id, time.Now().UTC()); err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("Failed to mark submission accepted")
		}
	}

	title, message := "Address watched", fmt.Sprintf("Address %s is now watched", r.Address)
	if kind == models.SubmissionKindUpdate {
		title, message = "Address updated", fmt.Sprintf("Received amount of %s updated", r.Address)
	}

	s.notify(ctx, false, title, message, map[string]interface{}{
		"address": r.Address,
		"tx_hash": r.TxHash.Hex(),
	})
}

func (s *WatchService) failed(ctx context.Context, kind models.SubmissionKind, address string, err error) {
	title := "Watch failed"
	if kind == models.SubmissionKindUpdate {
		title = "Update failed"
	}

	message := err.Error()
	if utils.IsCode(err, utils.ErrCodeAddressDecode) {
		message = fmt.Sprintf("%s is not a valid address: %v", address, err)
	} else {
		s.journalFailure(ctx, kind, address, err)
	}

	s.notify(ctx, true, title, message, map[string]interface{}{"address": address})
}

// journalFailure records a command the node did not take. Nothing is
// recorded for addresses that never decoded.
func (s *WatchService) journalFailure(ctx context.Context, kind models.SubmissionKind, address string, cause error) {
	if s.journal == nil {
		return
	}

	addressHex, _ := coinaddr.AddressToHex(address)
	submission := &models.WatchSubmission{
		ID:         uuid.NewString(),
		Kind:       kind,
		Contract:   s.gateway.Contract().Hex(),
		Address:    address,
		AddressHex: addressHex,
		Status:     models.SubmissionStatusSubmitted,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.journal.SaveSubmission(ctx, submission)
	if err == nil {
		err = s.journal.MarkSubmissionFailed(ctx, submission.ID, cause.Error())
	}
	if err != nil {
		s.logger.WithError(err).WithField("address", address).Warn("Failed to journal failed submission")
	}
}

func (s *WatchService) notify(ctx context.Context, isError bool, title, message string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}

	var err error
	if isError {
		err = s.notifier.Error(ctx, title, message, data)
	} else {
		err = s.notifier.Info(ctx, title, message, data)
	}
	if err != nil {
		s.logger.WithError(err).Debug("Notification not fully delivered")
	}
}

// Submissions lists journaled submissions. Without a journal the list is
// empty.
func (s *WatchService) Submissions(ctx context.Context, filter models.SubmissionFilter) ([]*models.WatchSubmission, error) {
	if s.journal == nil {
		return []*models.WatchSubmission{}, nil
	}

	submissions, err := s.journal.GetSubmissions(ctx, filter)
	if err != nil {
		return nil, err
	}
	if submissions == nil {
		submissions = []*models.WatchSubmission{}
	}
	return submissions, nil
}

// Wait blocks until every acceptance callback of a successful submission has
// run, or ctx is done
func (s *WatchService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
