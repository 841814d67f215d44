package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voicecall-platform/internal/reporting"
	"voicecall-platform/pkg/logger"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func statsQuery(c *gin.Context) (reporting.Query, bool) {
	q := reporting.Query{AgentID: c.Query("agent_id")}
	if v := c.Query("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "refresh must be a boolean")
			return reporting.Query{}, false
		}
		q.Refresh = b
	}
	return q, true
}

func (h Handlers) Stats(c *gin.Context) {
	if !requireService(c, h.Reports != nil, "reporting") {
		return
	}
	q, ok := statsQuery(c)
	if !ok {
		return
	}
	st, err := h.Reports.Stats(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) ExportStats(c *gin.Context) {
	if !requireService(c, h.Reports != nil, "reporting") {
		return
	}
	q, ok := statsQuery(c)
	if !ok {
		return
	}
	st, err := h.Reports.Stats(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := reporting.ExportXLSX(&buf, st); err != nil {
		writeError(c, err)
		return
	}
	name := fmt.Sprintf("estadisticas-%s-%s.xlsx", st.AgentID, st.GeneratedAt.Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// GetConversation returns the vendor's conversation detail. With
// translate=true the transcript summary is also translated; translation
// failures fall back to the original text.
func (h Handlers) GetConversation(c *gin.Context) {
	if !requireService(c, h.Conversations != nil, "conversations") {
		return
	}
	wantTranslation := false
	if v := c.Query("translate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "translate must be a boolean")
			return
		}
		wantTranslation = b
	}

	conv, err := h.Conversations.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{
		"conversation":       conv,
		"transcript_summary": conv.TranscriptSummary(),
	}
	if wantTranslation {
		res := h.Translator.TranslateOrOriginal(c.Request.Context(), conv.TranscriptSummary())
		if !res.Translated {
			logger.FromGin(c).Debug("summary not translated", "conversation_id", c.Param("id"))
		}
		resp["translation"] = res
	}
	c.JSON(http.StatusOK, resp)
}

func (h Handlers) VerifyAgent(c *gin.Context) {
	if !requireService(c, h.Agents != nil, "agents") {
		return
	}
	report, err := h.Agents.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
