package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipforge/clipforge-engine/internal/media"
	"github.com/clipforge/clipforge-engine/internal/timeline"
)

func multipartUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return buf, mw.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func importAsset(t *testing.T, router http.Handler, filename, contentType string, data []byte) AssetResponse {
	t.Helper()
	body, formType := multipartUpload(t, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/assets", body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", formType)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("import: status code = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp AssetResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestImportAsset_Image(t *testing.T) {
	cfg, _ := newTestConfig(t)
	router := NewRouter(cfg)

	resp := importAsset(t, router, "pic.png", "image/png", pngBytes(t))
	if resp.Kind != "image" {
		t.Errorf("kind = %q, want image", resp.Kind)
	}
	if resp.Width != 8 || resp.Height != 8 {
		t.Errorf("dimensions = %dx%d, want 8x8", resp.Width, resp.Height)
	}

	asset, ok := cfg.Timeline.GetAsset(resp.ID)
	if !ok {
		t.Fatal("asset not registered on the timeline")
	}
	if asset.Duration != timeline.DefaultImageDuration {
		t.Errorf("duration = %v, want the 5s image default", asset.Duration)
	}

	// The blob is persisted for export staging.
	blob, err := cfg.Repo.GetBlob(context.Background(), resp.ID)
	if err != nil || blob == nil {
		t.Fatalf("GetBlob() = %v, %v", blob, err)
	}
	if blob.Filename != "pic.png" {
		t.Errorf("blob filename = %q", blob.Filename)
	}
}

func TestImportAsset_VideoProbesMetadata(t *testing.T) {
	cfg, stub := newTestConfig(t)
	stub.DefaultProbe = &media.ProbeResult{
		Duration:  2.0,
		Width:     640,
		Height:    360,
		FrameRate: 10,
	}
	router := NewRouter(cfg)

	resp := importAsset(t, router, "clip.mp4", "video/mp4", []byte("not really mp4"))
	if resp.Kind != "video" {
		t.Errorf("kind = %q, want video", resp.Kind)
	}
	if resp.Duration != 2.0 || resp.FrameRate != 10 {
		t.Errorf("metadata = %v @ %v, want probed values", resp.Duration, resp.FrameRate)
	}
	if resp.TotalFrames != 20 {
		t.Errorf("total frames = %d, want 20", resp.TotalFrames)
	}

	// Extraction kicks off in the background and fills the frame library.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if s := cfg.Library.Get(resp.ID); s != nil && s.Len() == 20 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("extraction never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestImportAsset_UnsupportedType(t *testing.T) {
	cfg, _ := newTestConfig(t)
	router := NewRouter(cfg)

	body, formType := multipartUpload(t, "notes.txt", "text/plain", []byte("hi"))
	req := httptest.NewRequest(http.MethodPost, "/assets", body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", formType)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status code = %d, want 415", rr.Code)
	}
}

func TestImportAsset_ProbeFailureRejectsUpload(t *testing.T) {
	cfg, stub := newTestConfig(t)
	stub.ProbeErr = errors.New("moov atom not found")
	router := NewRouter(cfg)

	body, formType := multipartUpload(t, "clip.mp4", "video/mp4", []byte("junk"))
	req := httptest.NewRequest(http.MethodPost, "/assets", body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", formType)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want 400", rr.Code)
	}
	if len(cfg.Timeline.Snapshot().Assets) != 0 {
		t.Error("failed upload still registered an asset")
	}
}

func TestRemoveAsset(t *testing.T) {
	cfg, _ := newTestConfig(t)
	router := NewRouter(cfg)

	resp := importAsset(t, router, "pic.png", "image/png", pngBytes(t))

	req := httptest.NewRequest(http.MethodDelete, "/assets/"+resp.ID, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status code = %d, want 204", rr.Code)
	}

	if _, ok := cfg.Timeline.GetAsset(resp.ID); ok {
		t.Error("asset still on the timeline")
	}
	blob, err := cfg.Repo.GetBlobMeta(context.Background(), resp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if blob != nil {
		t.Error("blob still persisted")
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/assets/"+resp.ID, nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("double remove: status code = %d, want 404", rr.Code)
	}
}

func TestListAssets(t *testing.T) {
	cfg, _ := newTestConfig(t)
	router := NewRouter(cfg)
	importAsset(t, router, "pic.png", "image/png", pngBytes(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authedRequest(http.MethodGet, "/assets", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var resp AssetsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Assets) != 1 || resp.Assets[0].Name != "pic.png" {
		t.Errorf("assets = %+v", resp.Assets)
	}
}
