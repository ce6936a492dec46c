package approval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"sameieportalen.no/internal/auth"
	"sameieportalen.no/internal/ids"
	"sameieportalen.no/internal/lock"
	"sameieportalen.no/internal/mail"
	"sameieportalen.no/internal/obs"
)

const (
	DefaultTokenTTL = 30 * 24 * time.Hour

	actionSend   = "sende protokollen til godkjenning"
	actionStatus = "se status for godkjenninger"
)

// DefaultDocumentURLPattern accepts links into the organization's document system.
var DefaultDocumentURLPattern = regexp.MustCompile(`^https://docs\.google\.com/document/`)

// Gate authorizes the caller in ctx.
type Gate interface {
	RequirePermission(ctx context.Context, p auth.Permission, action string) error
}

// Service runs the approval workflow.
type Service struct {
	repo       Repository
	docs       Documents
	recipients Recipients
	mailer     mail.Sender
	gate       Gate
	locker     lock.Locker
	audit      auth.Auditor
	urlPattern *regexp.Regexp
	publicURL  string
	tokenTTL   time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

// Option configures Service.
type Option func(*Service)

// WithLocker replaces the default in-process locker.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithAuditor(a auth.Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithDocumentURLPattern sets the pattern every document URL must match.
func WithDocumentURLPattern(re *regexp.Regexp) Option {
	return func(s *Service) {
		if re != nil {
			s.urlPattern = re
		}
	}
}

// WithPublicURL sets the base of the links placed in emails.
func WithPublicURL(base string) Option {
	return func(s *Service) { s.publicURL = strings.TrimRight(strings.TrimSpace(base), "/") }
}

// WithTokenTTL sets how long links stay valid after sending. Zero disables expiry.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the workflow. All collaborators are required.
func NewService(repo Repository, docs Documents, recipients Recipients, mailer mail.Sender, gate Gate, opts ...Option) (*Service, error) {
	if repo == nil || docs == nil || recipients == nil || mailer == nil || gate == nil {
		return nil, fmt.Errorf("%w: repository, documents, recipients, mailer and gate are required", ErrConfiguration)
	}
	s := &Service{
		repo:       repo,
		docs:       docs,
		recipients: recipients,
		mailer:     mailer,
		gate:       gate,
		locker:     lock.NewLocal(),
		urlPattern: DefaultDocumentURLPattern,
		publicURL:  "http://localhost:8080",
		tokenTTL:   DefaultTokenTTL,
		now:        time.Now,
		log:        obs.Component("approval"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendForApproval creates one record per recipient, marks the document as
// pending and emails every recipient their action links. Email failures after
// the batch is stored are logged and counted but do not fail the call.
func (s *Service) SendForApproval(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := s.gate.RequirePermission(ctx, auth.PermSendProtocolApproval, actionSend); err != nil {
		return SendResult{}, err
	}
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.DocumentURL = strings.TrimSpace(req.DocumentURL)
	if err := validate.Struct(req); err != nil {
		return SendResult{}, validationError(err)
	}

	docURL, err := s.resolveDocumentURL(ctx, req)
	if err != nil {
		return SendResult{}, err
	}

	recipients, err := s.recipients.ApprovalRecipients(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: load recipients: %v", ErrConfiguration, err)
	}
	if len(recipients) == 0 {
		return SendResult{}, ErrNoRecipients
	}

	unlock, err := s.locker.Lock(ctx, documentLockName(req.DocumentID))
	if err != nil {
		return SendResult{}, fmt.Errorf("approval: lock document: %w", err)
	}
	defer unlock()

	records, err := s.newBatch(req.DocumentID, docURL, recipients)
	if err != nil {
		return SendResult{}, err
	}
	if err := s.repo.InsertBatch(ctx, records); err != nil {
		return SendResult{}, fmt.Errorf("approval: store batch: %w", err)
	}
	batchID := records[0].BatchID
	log := s.log.WithFields(logrus.Fields{"batch_id": batchID, "document_id": req.DocumentID})

	if err := s.docs.StartBatch(ctx, req.DocumentID, batchID); err != nil {
		return SendResult{}, fmt.Errorf("approval: start batch: %w", err)
	}

	failed := 0
	for _, rec := range records {
		if err := s.mailer.Send(ctx, buildMessage(s.publicURL, rec, false)); err != nil {
			failed++
			obs.ObserveEmail(false)
			log.WithError(err).WithField("recipient", rec.Email).Warn("approval email failed")
			continue
		}
		obs.ObserveEmail(true)
	}

	s.auditEvent(ctx, "approval.batch.sent", map[string]any{
		"batch_id":        batchID,
		"document_id":     req.DocumentID,
		"recipient_count": len(records),
		"emails_failed":   failed,
	})
	log.WithFields(logrus.Fields{"recipients": len(records), "emails_failed": failed}).Info("approval batch sent")

	return SendResult{BatchID: batchID, RecipientCount: len(records), EmailsFailed: failed}, nil
}

func (s *Service) resolveDocumentURL(ctx context.Context, req SendRequest) (string, error) {
	docURL := req.DocumentURL
	if docURL == "" {
		stored, err := s.docs.DocumentURL(ctx, req.DocumentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return "", fmt.Errorf("%w: document %s", ErrNotFound, req.DocumentID)
			}
			return "", fmt.Errorf("approval: read document: %w", err)
		}
		docURL = strings.TrimSpace(stored)
	}
	if docURL == "" {
		return "", fmt.Errorf("%w: document %s has no URL", ErrValidation, req.DocumentID)
	}
	if !s.urlPattern.MatchString(docURL) {
		return "", fmt.Errorf("%w: document URL must match %s", ErrValidation, s.urlPattern)
	}
	return docURL, nil
}

func (s *Service) newBatch(documentID, docURL string, recipients []Recipient) ([]Record, error) {
	batchID := ids.BatchID(documentID)
	sentAt := s.now().UTC()
	seen := make(map[string]struct{}, len(recipients))
	records := make([]Record, 0, len(recipients))
	for _, r := range recipients {
		var token string
		for {
			t, err := ids.Token()
			if err != nil {
				return nil, fmt.Errorf("approval: generate token: %w", err)
			}
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				token = t
				break
			}
		}
		records = append(records, Record{
			BatchID:     batchID,
			DocumentID:  documentID,
			Name:        r.Name,
			Email:       r.Email,
			Token:       token,
			SentAt:      sentAt,
			Status:      StatusSent,
			DocumentURL: docURL,
		})
	}
	return records, nil
}

// HandleCallback applies a recipient's response. It never returns an error:
// every failure is expressed as a Response for the end user and logged.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) Response {
	resp := s.handleCallback(ctx, req)
	obs.ObserveCallback(string(resp.Outcome))
	return resp
}

func (s *Service) handleCallback(ctx context.Context, req CallbackRequest) Response {
	req.BatchID = strings.TrimSpace(req.BatchID)
	req.Token = strings.TrimSpace(req.Token)
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	req.Comment = strings.TrimSpace(req.Comment)
	if err := validate.Struct(req); err != nil {
		s.log.WithError(validationError(err)).Info("invalid approval callback")
		return invalidRequest()
	}
	action, _ := ParseAction(req.Action)
	log := s.log.WithField("batch_id", req.BatchID)

	rec, err := s.repo.FindByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidLink()
		}
		log.WithError(err).Error("approval lookup failed")
		return internalError()
	}
	if rec.BatchID != req.BatchID {
		log.WithField("token_batch_id", rec.BatchID).Warn("approval token used with another batch")
		return invalidLink()
	}

	// Sends and responses for one document are serialized so that the
	// current-batch check below holds until the status is written.
	unlock, err := s.locker.Lock(ctx, documentLockName(rec.DocumentID))
	if err != nil {
		log.WithError(err).Error("approval lock failed")
		return internalError()
	}
	defer unlock()

	if rec, err = s.repo.FindByToken(ctx, req.Token); err != nil {
		log.WithError(err).Error("approval lookup failed")
		return internalError()
	}
	if rec.Status.Terminal() {
		return alreadyProcessed(rec.Status)
	}
	current, err := s.docs.CurrentBatch(ctx, rec.DocumentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.WithError(err).Error("current batch lookup failed")
		return internalError()
	}
	if current != rec.BatchID {
		log.WithField("current_batch_id", current).Info("response to superseded approval batch")
		return superseded()
	}
	now := s.now().UTC()
	if s.tokenTTL > 0 && now.After(rec.SentAt.Add(s.tokenTTL)) {
		return expired()
	}

	status := action.status()
	if err := s.repo.UpdateResponse(ctx, rec.Token, status, now, req.Comment); err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			if current, ferr := s.repo.FindByToken(ctx, rec.Token); ferr == nil {
				return alreadyProcessed(current.Status)
			}
			return alreadyProcessed(status)
		}
		log.WithError(err).Error("approval update failed")
		return internalError()
	}

	aggregate := s.refreshAggregate(ctx, rec.BatchID, rec.DocumentID, log)

	s.auditEvent(ctx, "approval.response.recorded", map[string]any{
		"batch_id":    rec.BatchID,
		"document_id": rec.DocumentID,
		"recipient":   rec.Email,
		"status":      string(status),
		"aggregate":   string(aggregate),
	})
	log.WithFields(logrus.Fields{"recipient": rec.Email, "status": status, "aggregate": aggregate}).Info("approval response recorded")
	return recorded(status, aggregate)
}

// refreshAggregate recomputes the document status from all records of the batch.
// The caller holds the document lock and has checked that the batch is current.
// Failures are logged; the next response recomputes it again.
func (s *Service) refreshAggregate(ctx context.Context, batchID, documentID string, log *logrus.Entry) DocumentStatus {
	records, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		log.WithError(err).Error("approval aggregate read failed")
		return ""
	}
	aggregate := Aggregate(records)
	if err := s.docs.SetStatus(ctx, documentID, aggregate); err != nil {
		log.WithError(err).Error("document status update failed")
	}
	return aggregate
}

// Status returns the records and aggregate of a batch.
func (s *Service) Status(ctx context.Context, batchID string) (BatchStatus, error) {
	if err := s.gate.RequirePermission(ctx, auth.PermViewApprovalStatus, actionStatus); err != nil {
		return BatchStatus{}, err
	}
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return BatchStatus{}, fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	records, err := s.repo.ListByBatch(ctx, batchID)
	if err != nil {
		return BatchStatus{}, fmt.Errorf("approval: list batch: %w", err)
	}
	if len(records) == 0 {
		return BatchStatus{}, fmt.Errorf("%w: batch %s", ErrNotFound, batchID)
	}
	current, err := s.docs.CurrentBatch(ctx, records[0].DocumentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return BatchStatus{}, fmt.Errorf("approval: current batch: %w", err)
	}
	return BatchStatus{
		BatchID:    batchID,
		DocumentID: records[0].DocumentID,
		Aggregate:  Aggregate(records),
		Current:    current == batchID,
		Records:    records,
	}, nil
}

// SendReminders re-mails recipients that have not answered within after and
// whose link is still valid. It returns the number of reminders delivered.
func (s *Service) SendReminders(ctx context.Context, after time.Duration) (int, error) {
	now := s.now().UTC()
	pending, err := s.repo.ListPending(ctx, now.Add(-after))
	if err != nil {
		return 0, fmt.Errorf("approval: list pending: %w", err)
	}
	sent := 0
	currentBatch := make(map[string]string)
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if s.tokenTTL > 0 && now.After(rec.SentAt.Add(s.tokenTTL)) {
			continue
		}
		current, ok := currentBatch[rec.DocumentID]
		if !ok {
			current, err = s.docs.CurrentBatch(ctx, rec.DocumentID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return sent, fmt.Errorf("approval: current batch: %w", err)
			}
			currentBatch[rec.DocumentID] = current
		}
		if current != rec.BatchID {
			continue
		}
		if err := s.mailer.Send(ctx, buildMessage(s.publicURL, rec, true)); err != nil {
			obs.ObserveEmail(false)
			s.log.WithError(err).WithFields(logrus.Fields{"batch_id": rec.BatchID, "recipient": rec.Email}).Warn("approval reminder failed")
			continue
		}
		obs.ObserveEmail(true)
		sent++
	}
	if sent > 0 {
		s.log.WithField("reminders", sent).Info("approval reminders sent")
	}
	return sent, nil
}

func (s *Service) auditEvent(ctx context.Context, event string, fields map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event, fields); err != nil {
		s.log.WithError(err).WithField("event", event).Error("audit event failed")
	}
}

func documentLockName(documentID string) string {
	return "approval:document:" + documentID
}
