package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dreamware/lloyd/internal/kmeans"
)

type NodeInfo struct {
	ID   string `json:"id"`
	Addr string `json:"addr"`
}

type RegisterRequest struct {
	Node NodeInfo `json:"node"`
}

// Kind names the collective a message belongs to.
type Kind string

const (
	KindScatter   Kind = "scatter"
	KindBroadcast Kind = "broadcast"
	KindReduce    Kind = "reduce"
	KindGather    Kind = "gather"
)

// Envelope is one point-to-point message of a collective operation. Seq
// is the collective's sequence number within the job; every rank issues
// collectives in the same order, so (Job, Seq, From) identifies a message.
type Envelope struct {
	Job     string          `json:"job"`
	Seq     uint64          `json:"seq"`
	From    int             `json:"from"`
	To      int             `json:"to"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// JobSpec tells a node which rank of a distributed job it runs.
// Peers[r] is the base URL of rank r; Peers[0] is the coordinator.
type JobSpec struct {
	ID         string   `json:"id"`
	Rank       int      `json:"rank"`
	Peers      []string `json:"peers"`
	K          int      `json:"k"`
	Iterations int      `json:"iterations"`
	Strategy   string   `json:"strategy"`
	Threads    int      `json:"threads"`
}

// JobRequest asks the coordinator to cluster Points across the cluster.
type JobRequest struct {
	Points     []kmeans.Point    `json:"points"`
	K          int               `json:"k"`
	Iterations int               `json:"iterations"`
	Strategy   string            `json:"strategy"`
	Threads    int               `json:"threads"`
	Seed       uint64            `json:"seed"`
	Initial    []kmeans.Centroid `json:"initial,omitempty"`
}

type JobResponse struct {
	ID     string        `json:"id"`
	Ranks  int           `json:"ranks"`
	Result kmeans.Result `json:"result"`
}

// DeregisterRequest is sent by a node leaving the cluster.
type DeregisterRequest struct {
	ID string `json:"id"`
}

type AbortRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// jobClient carries job submissions, which last as long as the job runs.
// Only the caller's context bounds them.
var jobClient = &http.Client{}

func PostJSON(ctx context.Context, url string, body any, out any) error {
	return postJSON(ctx, httpClient, url, body, out)
}

// SubmitJob posts req to the coordinator's /jobs endpoint and waits for
// the result.
func SubmitJob(ctx context.Context, coordinator string, req JobRequest) (*JobResponse, error) {
	var resp JobResponse
	url := strings.TrimRight(coordinator, "/") + "/jobs"
	if err := postJSON(ctx, jobClient, url, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	encoding := ""
	if len(reqBody) > CompressThreshold {
		reqBody = compress(reqBody)
		encoding = EncodingZstd
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", EncodingZstd)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode, Message: readMessage(resp)}
	}
	if out == nil {
		return nil
	}
	return decodeBody(resp.Body, resp.Header.Get("Content-Encoding"), out)
}

func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept-Encoding", EncodingZstd)
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &StatusError{URL: url, Code: resp.StatusCode, Message: readMessage(resp)}
	}
	return decodeBody(resp.Body, resp.Header.Get("Content-Encoding"), out)
}

// StatusError is returned by PostJSON and GetJSON for non-2xx responses.
type StatusError struct {
	URL     string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %s: %d", e.URL, e.Code)
	}
	return fmt.Sprintf("http %s: %d: %s", e.URL, e.Code, e.Message)
}
