package restserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ambience-earth/ambience/internal/calibration"
	"github.com/ambience-earth/ambience/internal/device"
	"github.com/ambience-earth/ambience/internal/feeding"
	"github.com/ambience-earth/ambience/internal/log"
	"github.com/ambience-earth/ambience/internal/storage"
	"github.com/ambience-earth/ambience/pkg/responseformat"
)

const (
	defaultRecent = 20
	maxRecent     = 500
)

var (
	errBadIndex   = errors.New("index must be a number")
	errBadKey     = errors.New("key must be a light-day number or \"today\"")
	errBadMinutes = errors.New("minutes must be below 1440")
	errBadAction  = errors.New("unknown feeding action")
	errNoLightDay = errors.New("the real-time clock has no valid date")

	errUnauthorized = errors.New("a valid bearer token is required")
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	device     *device.Device
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		device:     ctrl.deps.Device,
		formatter:  responseformat.NewFormatter(),
	}
}

func (h *Handlers) send(w http.ResponseWriter, req *http.Request, data any) {
	h.sendStatus(w, req, http.StatusOK, data)
}

func (h *Handlers) sendStatus(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponseStatus(w, req, status, data, nil); err != nil {
		log.Errorf("error encoding response for %s: %v", req.URL.Path, err)
	}
}

// sendError maps device and calibration errors to HTTP statuses
func (h *Handlers) sendError(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, device.ErrBadSlot):
		status = http.StatusNotFound
	case errors.Is(err, device.ErrBusy),
		errors.Is(err, feeding.ErrActive),
		errors.Is(err, feeding.ErrPaused),
		errors.Is(err, calibration.ErrRunning),
		errors.Is(err, calibration.ErrNotRunning),
		errors.Is(err, calibration.ErrNotStopped),
		errors.Is(err, calibration.ErrNoSamples):
		status = http.StatusConflict
	case errors.Is(err, device.ErrBadPoint),
		errors.Is(err, calibration.ErrNoVolume),
		errors.Is(err, errBadIndex),
		errors.Is(err, errBadKey),
		errors.Is(err, errBadMinutes),
		errors.Is(err, errBadAction):
		status = http.StatusBadRequest
	case errors.Is(err, errNoLightDay):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errUnauthorized):
		status = http.StatusUnauthorized
	}
	h.sendStatus(w, req, status, errorResponse{
		Error:   http.StatusText(status),
		Status:  status,
		Details: err.Error(),
	})
}

func (h *Handlers) badRequest(w http.ResponseWriter, req *http.Request, err error) {
	h.sendStatus(w, req, http.StatusBadRequest, errorResponse{
		Error:   "invalid request",
		Status:  http.StatusBadRequest,
		Details: err.Error(),
	})
}

func slotIndex(req *http.Request) (int, error) {
	i, err := strconv.Atoi(mux.Vars(req)["index"])
	if err != nil {
		return 0, errBadIndex
	}
	return i, nil
}

// GetStatus returns the device overview
func (h *Handlers) GetStatus(w http.ResponseWriter, req *http.Request) {
	h.send(w, req, h.device.Status())
}

// GetHealth returns the last health check of every storage backend
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	h.send(w, req, storage.GlobalHealthManager.GetAllHealth())
}

// GetHTTPLogs returns the buffered request log
func (h *Handlers) GetHTTPLogs(w http.ResponseWriter, req *http.Request) {
	h.send(w, req, log.GetHTTPLogBuffer().Entries())
}

func (h *Handlers) GetSettings(w http.ResponseWriter, req *http.Request) {
	h.send(w, req, h.device.Settings())
}

// PatchSettings updates the tunable settings given in the body
func (h *Handlers) PatchSettings(w http.ResponseWriter, req *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
		h.badRequest(w, req, err)
		return
	}
	if err := patch.validate(); err != nil {
		h.sendError(w, req, err)
		return
	}
	if err := h.device.UpdateSettings(patch.apply); err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, h.device.Settings())
}

// GetSlots returns every feed slot with its summary lines
func (h *Handlers) GetSlots(w http.ResponseWriter, req *http.Request) {
	h.send(w, req, h.device.Slots())
}

func (h *Handlers) GetSlot(w http.ResponseWriter, req *http.Request) {
	i, err := slotIndex(req)
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	slot, name, err := h.device.Slot(i)
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, slotResponse{Index: i, Name: name, Slot: slot})
}

// PutSlot validates and stores one feed slot
func (h *Handlers) PutSlot(w http.ResponseWriter, req *http.Request) {
	i, err := slotIndex(req)
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	var body slotRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.badRequest(w, req, err)
		return
	}
	if err := h.device.PutSlot(i, body.Slot, body.Name); err != nil {
		if errors.Is(err, device.ErrBadSlot) {
			h.sendError(w, req, err)
			return
		}
		// anything else is a validation failure
		h.badRequest(w, req, err)
		return
	}
	h.send(w, req, slotResponse{Index: i, Name: body.Name, Slot: body.Slot})
}

func (h *Handlers) GetLogLatest(w http.ResponseWriter, req *http.Request) {
	h.send(w, req, h.device.LatestEntry())
}

func (h *Handlers) GetLogCurrent(w http.ResponseWriter, req *http.Request) {
	h.send(w, req, h.device.CurrentEntry())
}

// StepLogBackward moves the browse cursor one entry back
func (h *Handlers) StepLogBackward(w http.ResponseWriter, req *http.Request) {
	v, moved := h.device.PrevEntry()
	h.send(w, req, stepResponse{LogView: v, Moved: moved})
}

// StepLogForward moves the browse cursor one entry forward
func (h *Handlers) StepLogForward(w http.ResponseWriter, req *http.Request) {
	v, moved := h.device.NextEntry()
	h.send(w, req, stepResponse{LogView: v, Moved: moved})
}

// GetLogRecent returns the newest entries; ?n= sets the count
func (h *Handlers) GetLogRecent(w http.ResponseWriter, req *http.Request) {
	n, err := countParam(req)
	if err != nil {
		h.badRequest(w, req, err)
		return
	}
	h.send(w, req, h.device.RecentEntries(n))
}

// GetLogDaily summarises one light day. The key "today" or 0 selects the
// current light day.
func (h *Handlers) GetLogDaily(w http.ResponseWriter, req *http.Request) {
	var key uint16
	if s := mux.Vars(req)["key"]; s != "today" {
		k, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			h.sendError(w, req, errBadKey)
			return
		}
		key = uint16(k)
	}
	sum, key, ok := h.device.Daily(key)
	if !ok {
		h.sendError(w, req, errNoLightDay)
		return
	}
	h.send(w, req, dailyResponse{Key: key, DailySummary: sum})
}

// WipeLog erases the event log
func (h *Handlers) WipeLog(w http.ResponseWriter, req *http.Request) {
	if err := h.device.WipeLog(); err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, h.device.LatestEntry())
}

// ForceFeed starts a feed of one slot immediately
func (h *Handlers) ForceFeed(w http.ResponseWriter, req *http.Request) {
	i, err := slotIndex(req)
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	if err := h.device.ForceFeed(i); err != nil {
		h.sendError(w, req, err)
		return
	}
	h.sendStatus(w, req, http.StatusAccepted, h.device.Status())
}

// FeedingControl handles enable, disable, pause, resume and
// clear-runoff-warning
func (h *Handlers) FeedingControl(w http.ResponseWriter, req *http.Request) {
	var err error
	switch mux.Vars(req)["action"] {
	case "enable":
		err = h.device.SetEnabled(true)
	case "disable":
		err = h.device.SetEnabled(false)
	case "pause":
		h.device.Pause()
	case "resume":
		h.device.Resume()
	case "clear-runoff-warning":
		h.device.ClearRunoffWarning()
	default:
		err = errBadAction
	}
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, h.device.Status())
}

func (h *Handlers) StartMoistureCalibration(w http.ResponseWriter, req *http.Request) {
	if err := h.device.StartMoistureCalibration(); err != nil {
		h.sendError(w, req, err)
		return
	}
	h.sendStatus(w, req, http.StatusAccepted, h.device.Status())
}

// GetMoistureCalibration returns the statistics of the running window
func (h *Handlers) GetMoistureCalibration(w http.ResponseWriter, req *http.Request) {
	stats, err := h.device.MoistureCalibrationStats()
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, stats)
}

func (h *Handlers) StopMoistureCalibration(w http.ResponseWriter, req *http.Request) {
	stats, err := h.device.StopMoistureCalibration()
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, stats)
}

// CommitMoistureCalibration stores the stopped window's mean as the dry or
// soaked point
func (h *Handlers) CommitMoistureCalibration(w http.ResponseWriter, req *http.Request) {
	point := device.MoisturePoint(mux.Vars(req)["point"])
	raw, err := h.device.CommitMoistureCalibration(point)
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, moistureCommitResponse{Point: string(point), Raw: raw})
}

func (h *Handlers) StartDripperCalibration(w http.ResponseWriter, req *http.Request) {
	if err := h.device.StartDripperCalibration(); err != nil {
		h.sendError(w, req, err)
		return
	}
	h.sendStatus(w, req, http.StatusAccepted, h.device.Status())
}

func (h *Handlers) StopDripperCalibration(w http.ResponseWriter, req *http.Request) {
	elapsed, err := h.device.StopDripperCalibration()
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, dripperStopResponse{ElapsedMs: elapsed.Milliseconds()})
}

// CommitDripperCalibration takes the measured volume of the stopped run
func (h *Handlers) CommitDripperCalibration(w http.ResponseWriter, req *http.Request) {
	var body dripperCommitRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.badRequest(w, req, err)
		return
	}
	msPerLiter, err := h.device.CommitDripperCalibration(body.Ml)
	if err != nil {
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, dripperCommitResponse{DripperMsPerLiter: msPerLiter})
}

// GetArchivedEvents returns this device's newest archived events
func (h *Handlers) GetArchivedEvents(w http.ResponseWriter, req *http.Request) {
	n, err := countParam(req)
	if err != nil {
		h.badRequest(w, req, err)
		return
	}
	events, err := h.controller.deps.Archive.Recent(req.Context(), h.device.ID(), n)
	if err != nil {
		log.Errorf("error reading archived events: %v", err)
		h.sendError(w, req, err)
		return
	}
	h.send(w, req, events)
}

func countParam(req *http.Request) (int, error) {
	s := req.URL.Query().Get("n")
	if s == "" {
		return defaultRecent, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("n must be a positive number")
	}
	if n > maxRecent {
		n = maxRecent
	}
	return n, nil
}
