package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voicecall-platform/internal/calls"
	"voicecall-platform/internal/poller"
)

func (h Handlers) bindSubmit(c *gin.Context) (calls.SubmitInput, bool) {
	var in calls.SubmitInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid json")
		return calls.SubmitInput{}, false
	}
	in.Actor = actorFrom(c)
	return in, true
}

// PreviewCall returns the exact payload a submission would send.
func (h Handlers) PreviewCall(c *gin.Context) {
	if !requireService(c, h.Calls != nil, "calls") {
		return
	}
	in, ok := h.bindSubmit(c)
	if !ok {
		return
	}
	p, err := h.Calls.Preview(in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// SubmitCall sends the batch and answers as soon as the vendor accepts it.
// Polling continues in the background; clients follow it via PollState.
func (h Handlers) SubmitCall(c *gin.Context) {
	if !requireService(c, h.Calls != nil, "calls") {
		return
	}
	in, ok := h.bindSubmit(c)
	if !ok {
		return
	}
	sub, err := h.Calls.Submit(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sub)
}

func (h Handlers) ListCalls(c *gin.Context) {
	if !requireService(c, h.Calls != nil, "calls") {
		return
	}
	f := calls.ListFilter{State: poller.State(c.Query("state"))}
	if f.State != "" && !validState(f.State) {
		badRequest(c, "unknown state")
		return
	}
	var ok bool
	if f.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}
	items, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "active": h.Calls.ActivePolls()})
}

func (h Handlers) GetCall(c *gin.Context) {
	if !requireService(c, h.Calls != nil, "calls") {
		return
	}
	b, err := h.Calls.Get(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CallStatus asks the vendor directly, bypassing the background poller.
func (h Handlers) CallStatus(c *gin.Context) {
	if !requireService(c, h.Calls != nil, "calls") {
		return
	}
	res, err := h.Calls.Status(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) PollState(c *gin.Context) {
	if !requireService(c, h.Calls != nil, "calls") {
		return
	}
	st, err := h.Calls.PollState(c.Request.Context(), c.Param("batch_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// CancelPoll stops local polling. The vendor batch is not cancelled.
func (h Handlers) CancelPoll(c *gin.Context) {
	if !requireService(c, h.Calls != nil, "calls") {
		return
	}
	st, err := h.Calls.Cancel(c.Request.Context(), actorFrom(c), c.Param("batch_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func validState(s poller.State) bool {
	switch s {
	case poller.StateInitiated, poller.StatePolling, poller.StateCompleted,
		poller.StateFailed, poller.StateCancelled, poller.StateAbandoned:
		return true
	default:
		return false
	}
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(c, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
