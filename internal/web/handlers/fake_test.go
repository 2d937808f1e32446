package handlers

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/failure"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

// fakeService records the calls the handlers make and returns canned results.
type fakeService struct {
	enrollReq     pipeline.EnrollRequest
	enrollResult  *pipeline.EnrollResult
	identifyPhoto []byte
	identifyTopK  int
	identifyThr   float64
	verifyClaimed string
	removed       map[string]int
	removeErr     error
	entries       []database.Entry
}

func newFakeService() *fakeService {
	return &fakeService{
		enrollResult: &pipeline.EnrollResult{Success: true, SignatureCountUsed: 1},
		removed:      map[string]int{},
	}
}

func (f *fakeService) Enroll(_ context.Context, req pipeline.EnrollRequest) *pipeline.EnrollResult {
	f.enrollReq = req
	res := *f.enrollResult
	res.IdentityID = req.IdentityID
	return &res
}

func (f *fakeService) Identify(_ context.Context, photo []byte, topK int, threshold float64) *pipeline.IdentifyResult {
	f.identifyPhoto, f.identifyTopK, f.identifyThr = photo, topK, threshold
	m := database.Match{IdentityID: "alice", Score: 0.8}
	return &pipeline.IdentifyResult{Success: true, Matches: []database.Match{m}, BestMatch: &m, Threshold: threshold}
}

func (f *fakeService) Verify(_ context.Context, photo []byte, claimedID string) *pipeline.VerifyResult {
	f.verifyClaimed = claimedID
	return &pipeline.VerifyResult{
		ClaimedIdentityID: claimedID,
		Threshold:         0.35,
		Failure:           &failure.Report{Status: failure.StatusLowSimilarity, Reason: "too far"},
	}
}

func (f *fakeService) RemoveIdentity(_ context.Context, identityID string) (int, error) {
	if f.removeErr != nil {
		return 0, f.removeErr
	}
	return f.removed[identityID], nil
}

func (f *fakeService) Statistics() database.Statistics {
	return database.Statistics{TotalEntries: 2, MetadataEntries: 2, Dimension: 4, Metric: database.MetricCosine, Identities: 2}
}

func (f *fakeService) Entries() []database.Entry { return f.entries }

func (f *fakeService) FailureStatistics() []failure.StatusCount {
	return []failure.StatusCount{{Status: failure.StatusNoFace, Count: 3, Percent: 100}}
}

func (f *fakeService) Options() pipeline.Options {
	return pipeline.Options{Threshold: 0.35, TopK: 5}
}

var errBoom = errors.New("boom")

var _ FaceService = (*fakeService)(nil)
var _ FaceService = (*pipeline.Pipeline)(nil)
