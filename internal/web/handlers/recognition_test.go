package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

func TestRecognitionHandler_Enroll(t *testing.T) {
	svc := newFakeService()
	h := NewRecognitionHandler(svc, zap.NewNop())

	req := multipartRequest(t, "/api/v1/enroll",
		map[string]string{
			"identity_id": "alice",
			"attributes":  `{"name":"Alice","age":31,"staff":true}`,
			"replace":     "true",
		},
		map[string][][]byte{"photos": {[]byte("one"), []byte("two")}},
	)
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if svc.enrollReq.IdentityID != "alice" || !svc.enrollReq.Replace {
		t.Errorf("Enroll request = %+v, want alice with replace", svc.enrollReq)
	}
	if len(svc.enrollReq.Photos) != 2 {
		t.Errorf("Enroll photos = %d, want 2", len(svc.enrollReq.Photos))
	}
	want := database.Metadata{"name": database.String("Alice"), "age": database.Number(31), "staff": database.Bool(true)}
	if !svc.enrollReq.Metadata.Equal(want) {
		t.Errorf("Enroll metadata = %v, want %v", svc.enrollReq.Metadata, want)
	}

	res := decodeBody[pipeline.EnrollResult](t, rec)
	if !res.Success || res.IdentityID != "alice" {
		t.Errorf("response = %+v, want success for alice", res)
	}
}

func TestRecognitionHandler_EnrollRejected(t *testing.T) {
	svc := newFakeService()
	svc.enrollResult = &pipeline.EnrollResult{FailureReason: pipeline.NoFaceInAnyPhoto}
	h := NewRecognitionHandler(svc, zap.NewNop())

	req := multipartRequest(t, "/api/v1/enroll",
		map[string]string{"identity_id": "bob"},
		map[string][][]byte{"photos": {[]byte("one")}},
	)
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
	res := decodeBody[pipeline.EnrollResult](t, rec)
	if res.FailureReason != pipeline.NoFaceInAnyPhoto {
		t.Errorf("failure_reason = %q, want %q", res.FailureReason, pipeline.NoFaceInAnyPhoto)
	}
}

func TestRecognitionHandler_EnrollBadRequests(t *testing.T) {
	tooMany := make([][]byte, 21)
	for i := range tooMany {
		tooMany[i] = []byte("x")
	}

	tests := []struct {
		name   string
		fields map[string]string
		files  map[string][][]byte
	}{
		{"missing identity", nil, map[string][][]byte{"photos": {[]byte("x")}}},
		{"no photos", map[string]string{"identity_id": "a"}, nil},
		{"too many photos", map[string]string{"identity_id": "a"}, map[string][][]byte{"photos": tooMany}},
		{"attributes not an object", map[string]string{"identity_id": "a", "attributes": `[1,2]`}, map[string][][]byte{"photos": {[]byte("x")}}},
		{"nested attribute", map[string]string{"identity_id": "a", "attributes": `{"tags":["x"]}`}, map[string][][]byte{"photos": {[]byte("x")}}},
		{"bad replace flag", map[string]string{"identity_id": "a", "replace": "maybe"}, map[string][][]byte{"photos": {[]byte("x")}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeService()
			h := NewRecognitionHandler(svc, zap.NewNop())
			rec := httptest.NewRecorder()
			h.Enroll(rec, multipartRequest(t, "/api/v1/enroll", tc.fields, tc.files))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
			}
			if svc.enrollReq.IdentityID != "" {
				t.Errorf("service was called with %+v", svc.enrollReq)
			}
		})
	}
}

func TestRecognitionHandler_EnrollNotMultipart(t *testing.T) {
	h := NewRecognitionHandler(newFakeService(), zap.NewNop())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/enroll", bytes.NewBufferString(`{"identity_id":"a"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Enroll(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestRecognitionHandler_Identify(t *testing.T) {
	tests := []struct {
		name          string
		fields        map[string]string
		wantStatus    int
		wantTopK      int
		wantThreshold float64
	}{
		{"defaults", nil, http.StatusOK, 5, 0.35},
		{"explicit", map[string]string{"top_k": "3", "threshold": "0.6"}, http.StatusOK, 3, 0.6},
		{"top_k zero", map[string]string{"top_k": "0"}, http.StatusBadRequest, 0, 0},
		{"top_k too large", map[string]string{"top_k": "101"}, http.StatusBadRequest, 0, 0},
		{"threshold not a number", map[string]string{"threshold": "high"}, http.StatusBadRequest, 0, 0},
		{"threshold out of range", map[string]string{"threshold": "1.5"}, http.StatusBadRequest, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeService()
			h := NewRecognitionHandler(svc, zap.NewNop())
			req := multipartRequest(t, "/api/v1/identify", tc.fields, map[string][][]byte{"photo": {[]byte("query")}})
			rec := httptest.NewRecorder()
			h.Identify(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			if svc.identifyTopK != tc.wantTopK || svc.identifyThr != tc.wantThreshold {
				t.Errorf("Identify(top_k=%d, threshold=%v), want (%d, %v)", svc.identifyTopK, svc.identifyThr, tc.wantTopK, tc.wantThreshold)
			}
			if string(svc.identifyPhoto) != "query" {
				t.Errorf("Identify photo = %q, want %q", svc.identifyPhoto, "query")
			}
			res := decodeBody[pipeline.IdentifyResult](t, rec)
			if !res.Success || res.BestMatch == nil || res.BestMatch.IdentityID != "alice" {
				t.Errorf("response = %+v, want best match alice", res)
			}
		})
	}
}

func TestRecognitionHandler_IdentifyPhotoCount(t *testing.T) {
	h := NewRecognitionHandler(newFakeService(), zap.NewNop())

	for name, files := range map[string]map[string][][]byte{
		"none": nil,
		"two":  {"photo": {[]byte("a"), []byte("b")}},
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Identify(rec, multipartRequest(t, "/api/v1/identify", nil, files))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestRecognitionHandler_Verify(t *testing.T) {
	svc := newFakeService()
	h := NewRecognitionHandler(svc, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Verify(rec, multipartRequest(t, "/api/v1/verify",
		map[string]string{"identity_id": "carol"},
		map[string][][]byte{"photo": {[]byte("query")}},
	))

	// A processed attempt is a 200 even when verification fails.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if svc.verifyClaimed != "carol" {
		t.Errorf("Verify claimed = %q, want carol", svc.verifyClaimed)
	}
	res := decodeBody[pipeline.VerifyResult](t, rec)
	if res.Verified || res.Failure == nil || res.Failure.Reason != "too far" {
		t.Errorf("response = %+v, want unverified with failure", res)
	}

	rec = httptest.NewRecorder()
	h.Verify(rec, multipartRequest(t, "/api/v1/verify", nil, map[string][][]byte{"photo": {[]byte("query")}}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing identity: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
