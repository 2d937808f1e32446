package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/face-id/internal/database"
)

// PhotosUsedKey is the metadata attribute recording how many photos formed the signature.
const PhotosUsedKey = "photos_used"

// NoFaceInAnyPhoto is the enrollment failure reason when every photo was discarded.
const NoFaceInAnyPhoto = "no face detected in any photo"

// EnrollRequest enrolls one identity from one or more photos.
type EnrollRequest struct {
	IdentityID string
	Photos     [][]byte
	Metadata   database.Metadata
	Replace    bool // replace the signature of an already enrolled identity
}

// PhotoOutcome reports what happened to one enrollment photo.
type PhotoOutcome struct {
	Index   int     `json:"index"`
	Used    bool    `json:"used"`
	Reason  string  `json:"reason,omitempty"`
	Metrics Metrics `json:"metrics"`
}

// EnrollResult is the outcome of an enrollment.
type EnrollResult struct {
	Success            bool           `json:"success"`
	IdentityID         string         `json:"identity_id"`
	SignatureCountUsed int            `json:"signature_count_used"`
	Position           int            `json:"position"`
	Replaced           int            `json:"replaced,omitempty"`
	FailureReason      string         `json:"failure_reason,omitempty"`
	Photos             []PhotoOutcome `json:"photos,omitempty"`
	TotalSeconds       float64        `json:"total_seconds"`
}

// Enroll extracts a signature from every photo in parallel, discards photos that fail,
// averages the survivors and adds the result to the gallery.
func (p *Pipeline) Enroll(ctx context.Context, req EnrollRequest) (res *EnrollResult) {
	start := time.Now()
	res = &EnrollResult{IdentityID: req.IdentityID, Position: -1}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("enroll panicked", zap.Any("panic", r), zap.Stack("stack"))
			res.Success = false
			res.Position = -1
			res.FailureReason = "internal error"
		}
		res.TotalSeconds = since(start)
	}()

	if err := validateEnroll(req); err != nil {
		res.FailureReason = err.Error()
		return res
	}
	if !req.Replace && p.index.Contains(req.IdentityID) {
		res.FailureReason = fmt.Sprintf("identity %q is already enrolled", req.IdentityID)
		return res
	}

	signatures, outcomes := p.extractAll(ctx, req.IdentityID, req.Photos)
	res.Photos = outcomes
	res.SignatureCountUsed = len(signatures)
	if len(signatures) == 0 {
		res.FailureReason = NoFaceInAnyPhoto
		return res
	}

	sig, err := Aggregate(signatures)
	if err != nil {
		p.logger.Error("failed to aggregate signatures", zap.String("identity_id", req.IdentityID), zap.Error(err))
		res.FailureReason = err.Error()
		return res
	}

	md := req.Metadata.Clone()
	if md == nil {
		md = database.Metadata{}
	}
	if _, ok := md[PhotosUsedKey]; !ok {
		md[PhotosUsedKey] = database.Number(float64(len(signatures)))
	}

	pos, replaced, err := p.store(req, sig, md)
	if err != nil {
		p.logger.Error("failed to add signature", zap.String("identity_id", req.IdentityID), zap.Error(err))
		res.FailureReason = err.Error()
		return res
	}
	res.Success = true
	res.Position = pos
	res.Replaced = replaced

	p.archiveSignature(ctx, database.StoredSignature{
		IdentityID: req.IdentityID,
		Signature:  sig,
		Metadata:   md,
		PhotoCount: len(signatures),
	})

	p.logger.Info("identity enrolled",
		zap.String("identity_id", req.IdentityID),
		zap.Int("photos", len(req.Photos)),
		zap.Int("used", len(signatures)),
		zap.Int("position", pos),
	)
	return res
}

func validateEnroll(req EnrollRequest) error {
	if req.IdentityID == "" {
		return errors.New("identity id is required")
	}
	if len(req.Photos) == 0 {
		return errors.New("at least one photo is required")
	}
	return req.Metadata.Validate()
}

// extractAll runs extraction on every photo with bounded parallelism. Survivors are
// returned in photo order.
func (p *Pipeline) extractAll(ctx context.Context, identityID string, photos [][]byte) ([][]float32, []PhotoOutcome) {
	outcomes := make([]PhotoOutcome, len(photos))
	signatures := make([][]float32, len(photos))

	var g errgroup.Group
	g.SetLimit(max(1, p.opts.EnrollWorkers))
	for i, photo := range photos {
		g.Go(func() error {
			outcomes[i].Index = i
			ex, err := p.extractSafe(ctx, photo)
			outcomes[i].Metrics = ex.metrics
			if err != nil {
				report := p.classify(ex, err)
				outcomes[i].Reason = report.Reason
				p.logger.Warn("discarding enrollment photo",
					zap.String("identity_id", identityID),
					zap.Int("photo", i),
					zap.String("status", string(report.Status)),
					zap.Error(err),
				)
				return nil
			}
			outcomes[i].Used = true
			signatures[i] = ex.signature
			return nil
		})
	}
	_ = g.Wait() // workers never fail; failed photos are discarded

	survivors := make([][]float32, 0, len(photos))
	for _, s := range signatures {
		if s != nil {
			survivors = append(survivors, s)
		}
	}
	return survivors, outcomes
}

// extractSafe is extract with provider panics turned into errors, so one bad photo
// cannot abort the others.
func (p *Pipeline) extractSafe(ctx context.Context, photo []byte) (ex *extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ex, err = &extraction{}, fmt.Errorf("%w: panic: %v", errUnclassified, r)
		}
	}()
	return p.extract(ctx, photo)
}

// store adds sig. When replacing, the identity's existing entries are swapped out in the same step.
func (p *Pipeline) store(req EnrollRequest, sig []float32, md database.Metadata) (pos, replaced int, err error) {
	p.enrollMu.Lock()
	defer p.enrollMu.Unlock()

	if req.Replace {
		pos, replaced, err = p.index.ReplaceIdentity(req.IdentityID, sig, md)
	} else {
		if p.index.Contains(req.IdentityID) {
			return -1, 0, fmt.Errorf("identity %q is already enrolled", req.IdentityID)
		}
		pos, err = p.index.Add(sig, req.IdentityID, md)
	}
	if err != nil {
		return -1, 0, err
	}
	p.autoSave()
	return pos, replaced, nil
}

// RemoveIdentity deletes every gallery entry of identityID in a single rebuild.
func (p *Pipeline) RemoveIdentity(ctx context.Context, identityID string) (int, error) {
	p.enrollMu.Lock()
	removed, err := p.index.RemoveIdentity(identityID)
	if err == nil && removed > 0 {
		p.autoSave()
	}
	p.enrollMu.Unlock()
	if err != nil {
		return 0, err
	}

	if p.archive != nil && removed > 0 {
		if err := p.archive.DeleteSignature(ctx, identityID); err != nil {
			p.logger.Error("failed to delete archived signature", zap.String("identity_id", identityID), zap.Error(err))
		}
	}
	p.logger.Info("identity removed", zap.String("identity_id", identityID), zap.Int("entries", removed))
	return removed, nil
}

func (p *Pipeline) archiveSignature(ctx context.Context, sig database.StoredSignature) {
	if p.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.archive.SaveSignature(ctx, sig); err != nil {
		p.logger.Error("failed to archive signature", zap.String("identity_id", sig.IdentityID), zap.Error(err))
	}
}
