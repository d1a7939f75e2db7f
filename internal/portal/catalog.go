package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_catalog_fetch_pending = "catalog.fetch-pending"

	evaluatedFlag = "1"
)

// Record is one evaluation that still has to be submitted.
type Record struct {
	// CourseSessionId identifies the record (KTID).
	CourseSessionId string
	// CourseName is the display name (KCM).
	CourseName string
	// FormDefinitionId identifies the questionnaire (WJBM).
	FormDefinitionId string
}

// statusFlag accepts the "already evaluated" flag as a string, a number or null.
type statusFlag string

func (f *statusFlag) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*f = statusFlag(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("evaluated flag: %w", err)
	}
	*f = statusFlag(num.String())
	return nil
}

type catalogRecord struct {
	KTID string     `json:"KTID"`
	KCM  string     `json:"KCM"`
	WJBM string     `json:"WJBM"`
	SFPG statusFlag `json:"SFPG"`
}

type catalogResponse struct {
	Data *struct {
		Records []catalogRecord `json:"records"`
	} `json:"data"`
}

// FetchPending lists the evaluations that have not been submitted yet. It returns
// ErrNothingPending when there are none.
func FetchPending(ctx context.Context, s *Session) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "FetchPending")
	defer span.End()

	body, err := s.PostForm(ctx, "fetch pending evaluations", PathPendingList, map[string]string{
		"pageNum":  "1",
		"pageSize": "30",
		"flag":     "kt",
	})
	if err != nil {
		s.tel.ReportBroken(report_catalog_fetch_pending, err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}

	records, err := ParseCatalog(body)
	if errors.Is(err, ErrNothingPending) {
		s.tel.ReportDebug(report_catalog_fetch_pending, "nothing pending")
		return nil, err
	}
	if err != nil {
		s.tel.ReportBroken(report_catalog_fetch_pending, err)
		span.SetStatus(codes.Error, "failed to parse")
		return nil, err
	}

	span.SetAttributes(attribute.Int("pending", len(records)))
	s.tel.ReportCount(report_catalog_fetch_pending, int64(len(records)))
	return records, nil
}

// ParseCatalog decodes the evaluation list response and drops the records that
// are already evaluated. Records without a flag count as not evaluated.
func ParseCatalog(body []byte) ([]Record, error) {
	var parsed catalogResponse
	err := json.Unmarshal(body, &parsed)
	if err != nil {
		return nil, &ProtocolDriftError{Page: "evaluation list", Detail: "decode json", Err: err}
	}
	if parsed.Data == nil {
		return nil, ErrNothingPending
	}

	var records []Record
	for _, r := range parsed.Data.Records {
		if r.SFPG == evaluatedFlag {
			continue
		}
		records = append(records, Record{
			CourseSessionId:  r.KTID,
			CourseName:       r.KCM,
			FormDefinitionId: r.WJBM,
		})
	}
	if len(records) == 0 {
		return nil, ErrNothingPending
	}
	return records, nil
}
