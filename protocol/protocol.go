package protocol

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

func GetSockAddress() string {
	return "/var/run/camgate.sock"
}

func GetLockFile() string {
	return "/var/run/camgate.pid"
}

type Action string

const (
	ActionCapture Action = "CAPTURE"
)

type Req struct {
	Action Action            `json:"action"`
	Params map[string]string `json:"params"`
}

type CaptureReq struct {
	Client string
	// Position overrides the configured camera side when set.
	Position string
	// Timeout overrides the configured attempt timeout when > 0.
	Timeout time.Duration
}

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

type Res struct {
	Status Status            `json:"status"`
	Error  string            `json:"error"`
	Extras map[string]string `json:"extras"`
}

func ReadReq(r io.Reader) (*Req, error) {
	var req Req
	err := json.NewDecoder(r).Decode(&req)
	return &req, err
}

func ReadRes(r io.Reader) (*Res, error) {
	var res Res
	err := json.NewDecoder(r).Decode(&res)
	return &res, err
}

func ToCaptureReq(req *Req) (*CaptureReq, error) {
	c := &CaptureReq{
		Client:   req.Params["client"],
		Position: req.Params["position"],
	}
	if t := req.Params["timeout"]; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, errors.Wrapf(err, "Invalid timeout %q", t)
		}
		c.Timeout = d
	}
	return c, nil
}

func WriteCaptureReq(w io.Writer, c CaptureReq) error {
	params := map[string]string{
		"client": c.Client,
	}
	if c.Position != "" {
		params["position"] = c.Position
	}
	if c.Timeout > 0 {
		params["timeout"] = c.Timeout.String()
	}
	req := Req{
		Action: ActionCapture,
		Params: params,
	}
	return json.NewEncoder(w).Encode(&req)
}

func WriteSuccessRes(w io.Writer, extras map[string]string) error {
	res := Res{
		Status: StatusSuccess,
		Extras: extras,
	}
	return json.NewEncoder(w).Encode(&res)
}

func WriteErrorRes(w io.Writer, err error) error {
	res := Res{
		Status: StatusError,
		Error:  err.Error(),
	}
	return json.NewEncoder(w).Encode(&res)
}

// Sample is the part of a captured frame reported to clients.
type Sample struct {
	Score     float64
	Timestamp time.Time
}

// CaptureSummary describes a capture batch as carried in Res.Extras.
type CaptureSummary struct {
	Attempt         string
	SampleCount     int
	QualityVariance float64
	First           Sample
	Best            Sample
	Last            Sample
}

func (s *CaptureSummary) Extras() map[string]string {
	extras := map[string]string{
		"attempt":          s.Attempt,
		"sample_count":     strconv.Itoa(s.SampleCount),
		"quality_variance": formatFloat(s.QualityVariance),
	}
	putSample(extras, "first", s.First)
	putSample(extras, "best", s.Best)
	putSample(extras, "last", s.Last)
	return extras
}

// ParseCaptureSummary reads a summary back from response extras.
func ParseCaptureSummary(extras map[string]string) (*CaptureSummary, error) {
	s := &CaptureSummary{Attempt: extras["attempt"]}
	var err error
	if s.SampleCount, err = strconv.Atoi(extras["sample_count"]); err != nil {
		return nil, errors.Wrap(err, "Invalid sample_count")
	}
	if s.QualityVariance, err = strconv.ParseFloat(extras["quality_variance"], 64); err != nil {
		return nil, errors.Wrap(err, "Invalid quality_variance")
	}
	if s.First, err = getSample(extras, "first"); err != nil {
		return nil, err
	}
	if s.Best, err = getSample(extras, "best"); err != nil {
		return nil, err
	}
	if s.Last, err = getSample(extras, "last"); err != nil {
		return nil, err
	}
	return s, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func putSample(extras map[string]string, name string, s Sample) {
	extras[name+"_score"] = formatFloat(s.Score)
	extras[name+"_timestamp"] = s.Timestamp.UTC().Format(time.RFC3339Nano)
}

func getSample(extras map[string]string, name string) (Sample, error) {
	score, err := strconv.ParseFloat(extras[name+"_score"], 64)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "Invalid %s_score", name)
	}
	ts, err := time.Parse(time.RFC3339Nano, extras[name+"_timestamp"])
	if err != nil {
		return Sample{}, errors.Wrapf(err, "Invalid %s_timestamp", name)
	}
	return Sample{Score: score, Timestamp: ts}, nil
}
