package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/JonMunkholm/visitaudit/internal/core"
	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
)

// multipartMemory is the in-memory part of a parsed upload form; larger
// parts spill to temporary files.
const multipartMemory = 32 << 20

var (
	errNoFile    = errors.New("no file provided")
	errEmptyFile = errors.New("empty file")
)

type fieldResponse struct {
	Header   string   `json:"header"`
	Key      string   `json:"key"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Enum     []string `json:"enum,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
}

type taskResponse struct {
	Name   string          `json:"name"`
	Group  string          `json:"group,omitempty"`
	Label  string          `json:"label"`
	Fields []fieldResponse `json:"fields"`
	Rules  []string        `json:"rules"`
}

func toTaskResponse(t *core.TaskTemplate) taskResponse {
	resp := taskResponse{
		Name:   t.Name,
		Group:  t.Group,
		Label:  t.Label,
		Fields: make([]fieldResponse, len(t.Fields)),
		Rules:  ruleNames(t.Rules),
	}
	for i, f := range t.Fields {
		resp.Fields[i] = fieldResponse{
			Header:   f.Header,
			Key:      f.Key,
			Type:     f.Type.String(),
			Required: f.Required,
			Enum:     f.EnumValues,
			Pattern:  f.Pattern,
			Min:      f.Min,
			Max:      f.Max,
		}
	}
	return resp
}

// ruleNames lists the error types a rule set can produce.
func ruleNames(rs core.RuleSet) []string {
	names := []string{}
	add := func(n int, t core.ErrorType) {
		if n > 0 {
			names = append(names, string(t))
		}
	}
	add(len(rs.Unique), core.ErrorUnique)
	add(len(rs.Frequency), core.ErrorFrequency)
	for _, r := range rs.Interval {
		names = append(names, string(r.Kind))
	}
	add(len(rs.TimeRange), core.ErrorTimeRange)
	add(len(rs.Duration), core.ErrorDuration)
	add(len(rs.MedicalLevel), core.ErrorMedicalLevel)
	add(len(rs.ProhibitedContent), core.ErrorProhibitedContent)
	add(len(rs.MaterialRequirement), core.ErrorMaterialRequirement)
	add(len(rs.CrossTask), core.ErrorCrossTask)
	return names
}

// handleHealth reports liveness and pass-slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"tasks":   s.service.Registry().Len(),
		"limiter": s.service.Limiter().Status(),
	})
}

// handleListTasks returns every registered task template.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	all := s.service.Registry().All()
	out := make([]taskResponse, len(all))
	for i, t := range all {
		out[i] = toTaskResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetTask returns one task template.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.service.Template(chi.URLParam(r, "task"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(tmpl))
}

// handleDownloadWorkbook returns an empty xlsx with the task's header row
// and drop-down lists for enumerated columns.
func (s *Server) handleDownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.service.Template(chi.URLParam(r, "task"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	data, err := headerWorkbook(tmpl)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	filename := url.PathEscape(tmpl.Name + ".xlsx")
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename*=UTF-8''%s`, filename))
	w.Write(data)
}

func headerWorkbook(tmpl *core.TaskTemplate) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	headers := make([]any, len(tmpl.Fields))
	for i, h := range tmpl.Headers() {
		headers[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	for i, field := range tmpl.Fields {
		if len(field.EnumValues) == 0 {
			continue
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", col, col, excelize.TotalRows)
		if err := dv.SetDropList(field.EnumValues); err != nil {
			return nil, fmt.Errorf("drop list for %s: %w", field.Header, err)
		}
		if err := f.AddDataValidation(sheet, dv); err != nil {
			return nil, fmt.Errorf("add data validation: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// handleValidate runs a validation pass and returns the result directly.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, status, err := s.parseValidateRequest(w, r)
	if err != nil {
		s.respondError(w, r, err, status)
		return
	}

	result, err := s.service.Validate(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStartRun starts an asynchronous validation run.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	req, status, err := s.parseValidateRequest(w, r)
	if err != nil {
		s.respondError(w, r, err, status)
		return
	}

	runID, err := s.service.StartValidation(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": runID})
}

// handleRunProgress streams run progress via Server-Sent Events.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	eventID := 0
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed: run finished, failed or was cancelled
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			eventID++
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleRunResult returns the result of a run, waiting for it to finish.
func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.GetResult(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCancelRun cancels an in-progress run.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelRun(chi.URLParam(r, "runID")); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// parseValidateRequest reads the multipart form: file, sheet and the
// optional secondaryFile, secondarySheet and secondaryTask. The returned
// status is zero when it should be derived from the error.
func (s *Server) parseValidateRequest(w http.ResponseWriter, r *http.Request) (core.ValidateRequest, int, error) {
	task := chi.URLParam(r, "task")
	tmpl, err := s.service.Template(task)
	if err != nil {
		return core.ValidateRequest{}, 0, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Validation.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return core.ValidateRequest{}, 0, fmt.Errorf("file too large: %w", err)
		}
		return core.ValidateRequest{}, http.StatusBadRequest, fmt.Errorf("invalid form: %w", err)
	}

	data, name, err := readFormFile(r, "file")
	if err != nil {
		return core.ValidateRequest{}, http.StatusBadRequest, err
	}

	req := core.ValidateRequest{
		Task:     task,
		Sheet:    r.FormValue("sheet"),
		FileName: name,
		Data:     data,
	}

	secondary, _, err := readFormFile(r, "secondaryFile")
	switch {
	case errors.Is(err, errNoFile):
		return req, 0, nil
	case err != nil:
		return core.ValidateRequest{}, http.StatusBadRequest, err
	}

	otherTask := r.FormValue("secondaryTask")
	if otherTask == "" && len(tmpl.Rules.CrossTask) > 0 {
		otherTask = tmpl.Rules.CrossTask[0].OtherTask
	}
	if otherTask == "" {
		return core.ValidateRequest{}, http.StatusBadRequest, errors.New("secondaryTask is required with secondaryFile")
	}
	req.Secondary = &core.SecondaryInput{
		Task:  otherTask,
		Sheet: r.FormValue("secondarySheet"),
		Data:  secondary,
	}
	return req, 0, nil
}

func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", errNoFile
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, "", errEmptyFile
	}
	return data, header.Filename, nil
}
