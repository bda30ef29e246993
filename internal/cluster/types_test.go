package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/lloyd/internal/kmeans"
)

func TestRegisterRequestFieldNames(t *testing.T) {
	data, err := json.Marshal(RegisterRequest{Node: NodeInfo{ID: "node-1", Addr: "http://10.0.0.5:8081"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"node":{"id":"node-1","addr":"http://10.0.0.5:8081"}}`, string(data))
}

// TestEnvelopePayloadPreserved verifies that raw payloads survive
// encoding untouched, which the collectives rely on.
func TestEnvelopePayloadPreserved(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
	}{
		{"object payload", `{"x":1.5,"y":-2}`},
		{"array payload", `[{"x":0.1,"y":0.2,"count":3}]`},
		{"null payload", `null`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := Envelope{Job: "j", Seq: 7, From: 2, Kind: KindReduce, Payload: json.RawMessage(tc.payload)}
			data, err := json.Marshal(env)
			require.NoError(t, err)

			var decoded Envelope
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, tc.payload, string(decoded.Payload))
			assert.Equal(t, uint64(7), decoded.Seq)
			assert.Equal(t, KindReduce, decoded.Kind)
		})
	}
}

// TestFloatsRoundTripExactly guards the bit-exact reduction across
// processes: float64 values must decode to the identical bits.
func TestFloatsRoundTripExactly(t *testing.T) {
	sums := kmeans.Sums{
		{X: 0.1 + 0.2, Y: 1e-300, Count: 3},
		{X: 123456789.123456789, Y: -0.0000001, Count: 1},
	}
	data, err := json.Marshal(sums)
	require.NoError(t, err)

	var decoded kmeans.Sums
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, sums, decoded)
}

func TestPostJSON(t *testing.T) {
	abort := AbortRequest{ID: "job-1", Reason: "rank 2 failed"}
	tests := []struct {
		name    string
		status  int
		reply   string
		body    any
		out     *JobResponse
		wantErr bool
		slow    bool
	}{
		{
			name:   "accepted with job response",
			status: http.StatusOK,
			reply:  `{"id":"job-1","ranks":3,"result":{"centroids":[{"x":1,"y":2}],"labels":[0,0]}}`,
			body:   abort,
			out:    &JobResponse{},
		},
		{name: "no content", status: http.StatusNoContent, body: abort},
		{name: "peer failure", status: http.StatusBadGateway, reply: "rank 1 unreachable", body: abort, wantErr: true},
		{name: "rejected spec", status: http.StatusBadRequest, reply: "k must be positive", body: JobSpec{ID: "job-1"}, wantErr: true},
		{name: "deadline", status: http.StatusOK, reply: `{}`, body: abort, wantErr: true, slow: true},
		{name: "body cannot be encoded", status: http.StatusOK, body: make(chan int), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				if tt.slow {
					time.Sleep(100 * time.Millisecond)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.reply)
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.slow {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Millisecond)
				defer cancel()
			}

			var out any
			if tt.out != nil {
				out = tt.out
			}
			err := PostJSON(ctx, server.URL, tt.body, out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.out != nil {
				assert.Equal(t, "job-1", tt.out.ID)
				assert.Equal(t, 3, tt.out.Ranks)
				assert.Equal(t, []int{0, 0}, tt.out.Result.Labels)
				assert.Equal(t, []kmeans.Centroid{{X: 1, Y: 2}}, tt.out.Result.Centroids)
			}
		})
	}
}

func TestPostJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job exists", http.StatusConflict)
	}))
	defer server.Close()

	err := PostJSON(context.Background(), server.URL, map[string]string{}, nil)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.Code)
	assert.Equal(t, "job exists", se.Message)
	assert.Contains(t, err.Error(), "409")
}

// TestPostJSONCompressesLargeBodies sends a body above the threshold and
// checks that it arrives zstd-encoded and decodes to the value that was sent.
func TestPostJSONCompressesLargeBodies(t *testing.T) {
	points := make([]kmeans.Point, 10000)
	for i := range points {
		points[i] = kmeans.NewPoint(float64(i), float64(i%17)/3)
	}
	req := JobRequest{Points: points, K: 4, Iterations: 10, Strategy: "distributed"}

	var got JobRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, EncodingZstd, r.Header.Get("Content-Encoding"))
		assert.NoError(t, DecodeJSON(r, &got))
		// Echo the points back; the response is large enough to be
		// compressed as well.
		WriteJSON(w, r, http.StatusOK, got.Points)
	}))
	defer server.Close()

	var echoed []kmeans.Point
	require.NoError(t, PostJSON(context.Background(), server.URL, req, &echoed))
	assert.Equal(t, req, got)
	assert.Equal(t, points, echoed)
}

func TestDecodeJSONPlainBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"id":"n1","addr":"http://x"}`))
	var n NodeInfo
	require.NoError(t, DecodeJSON(r, &n))
	assert.Equal(t, NodeInfo{ID: "n1", Addr: "http://x"}, n)
}

func TestDecodeJSONCorruptZstd(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("definitely not zstd"))
	r.Header.Set("Content-Encoding", EncodingZstd)
	var n NodeInfo
	assert.Error(t, DecodeJSON(r, &n))
}

func TestWriteJSONSmallBodyUncompressed(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Encoding", EncodingZstd)
	w := httptest.NewRecorder()

	WriteJSON(w, r, http.StatusCreated, map[string]int{"a": 1})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	body, _ := io.ReadAll(w.Body)
	assert.JSONEq(t, `{"a":1}`, string(body))
}

func TestPostJSONUnreachable(t *testing.T) {
	ctx := context.Background()
	req := AbortRequest{ID: "job-1"}

	assert.Error(t, PostJSON(ctx, "://bad", req, nil))
	assert.Error(t, PostJSON(ctx, "http://localhost:99999", req, nil))
}

func TestGetJSON(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		reply   string
		wantErr bool
		slow    bool
	}{
		{name: "node list", status: http.StatusOK, reply: `{"nodes":[{"id":"node-1","addr":"http://n1"}]}`},
		{name: "unknown path", status: http.StatusNotFound, reply: "404 page not found", wantErr: true},
		{name: "deadline", status: http.StatusOK, reply: `{"nodes":[]}`, wantErr: true, slow: true},
		{name: "garbled reply", status: http.StatusOK, reply: `{"nodes":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				if tt.slow {
					time.Sleep(100 * time.Millisecond)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.reply)
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.slow {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Millisecond)
				defer cancel()
			}

			var out struct {
				Nodes []NodeInfo `json:"nodes"`
			}
			err := GetJSON(ctx, server.URL, &out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []NodeInfo{{ID: "node-1", Addr: "http://n1"}}, out.Nodes)
		})
	}
}

func TestHTTPClientTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, httpClient.Timeout)
}

func TestSubmitJob(t *testing.T) {
	assert.Zero(t, jobClient.Timeout, "job submissions are bounded by ctx only")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		var req JobRequest
		assert.NoError(t, DecodeJSON(r, &req))
		if req.K == 0 {
			time.Sleep(200 * time.Millisecond)
		}
		WriteJSON(w, r, http.StatusOK, JobResponse{ID: "job-7", Ranks: 2, Result: kmeans.Result{Labels: []int{0, 1}}})
	}))
	defer server.Close()

	resp, err := SubmitJob(context.Background(), server.URL+"/", JobRequest{K: 2, Strategy: "hybrid"})
	require.NoError(t, err)
	assert.Equal(t, "job-7", resp.ID)
	assert.Equal(t, []int{0, 1}, resp.Result.Labels)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = SubmitJob(ctx, server.URL, JobRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
