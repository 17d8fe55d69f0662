package httpapi

import (
	"context"
	"errors"
	"net/http"

	"receptiongw/internal/config"
	"receptiongw/internal/model"
	"receptiongw/internal/pipeline"
	"receptiongw/internal/recording"
	"receptiongw/internal/transcription"
	"receptiongw/internal/upstream/openai"
	"receptiongw/internal/upstream/telephony"
)

const statusClientClosedRequest = 499

var stageMessages = map[pipeline.Stage]string{
	pipeline.StageResolving:    "Failed to fetch call audio",
	pipeline.StageDownloading:  "Failed to download recording",
	pipeline.StageTranscribing: "Transcription failed",
	pipeline.StageSummarizing:  "Duty query generation failed",
}

// writeMappedError is the single place where domain and upstream errors
// become HTTP statuses.
func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := model.ErrorResponse{Error: err.Error()}

	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		resp.Stage = string(stageErr.Stage)
		if msg, ok := stageMessages[stageErr.Stage]; ok {
			resp.Error = msg
			resp.Details = stageErr.Err.Error()
		}
	}

	var (
		notFound     *recording.NotFoundError
		telephonyErr *telephony.Error
		openaiErr    *openai.Error
		credErr      *config.MissingCredentialError
	)
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
		resp.Error = notFound.Message()
		resp.Details = notFound.Detail
	case errors.As(err, &telephonyErr):
		status = upstreamStatus(telephonyErr.StatusCode)
		if resp.Stage == "" {
			resp.Error = "Telephony request failed"
		}
		resp.Details = telephonyErr.Body
	case errors.As(err, &openaiErr):
		status = upstreamStatus(openaiErr.StatusCode)
		if resp.Stage == "" {
			resp.Error = "AI provider request failed"
		}
		resp.Details = openaiErr.Body
	case errors.Is(err, telephony.ErrPageLimitExceeded):
		status = http.StatusBadGateway
		resp.Error = "Telephony pagination did not terminate"
		resp.Details = err.Error()
	case errors.Is(err, telephony.ErrBodyTooLarge):
		status = http.StatusBadGateway
		resp.Error = "Recording too large"
		resp.Details = err.Error()
	case errors.Is(err, transcription.ErrEmptyTranscript):
		status = http.StatusBadGateway
		resp.Details = err.Error()
	case errors.As(err, &credErr):
		resp.Error = "Server configuration error"
		resp.Details = credErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		resp.Error = "Request timed out"
		resp.Details = err.Error()
	case errors.Is(err, context.Canceled):
		status = statusClientClosedRequest
		resp.Error = "Request canceled"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"stage", resp.Stage,
			"error", err,
		)
	}
	s.writeError(w, r, status, resp)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, resp model.ErrorResponse) {
	resp.Status = status
	resp.RequestID = requestIDFromContext(r.Context())
	writeJSON(w, status, resp)
}

// upstreamStatus forwards the upstream's own status when it is an error
// status, and reports a bad gateway otherwise.
func upstreamStatus(code int) int {
	if code >= 400 && code <= 599 {
		return code
	}
	return http.StatusBadGateway
}
