package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	SheetSummary       = "Resumen"
	SheetConversations = "Conversaciones"
)

var conversationHeader = []any{
	"conversation_id",
	"fecha",
	"duracion_segundos",
	"estado",
	"resultado",
	"telefono_destino",
	"nombre_paciente",
	"producto",
	"resumen",
}

// ExportXLSX writes st as a workbook with a summary sheet and one row per
// conversation.
func ExportXLSX(w io.Writer, st Stats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][]any{
		{"agente", st.AgentID},
		{"generado", st.GeneratedAt.UTC().Format(time.RFC3339)},
		{"total_llamadas", st.TotalCalls},
		{"total_minutos", st.TotalMinutes},
		{"exitosas", st.Exitosas},
		{"fallidas", st.Fallidas},
		{"desconocidas", st.Desconocidas},
	}
	for i, row := range summary {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetConversations); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	if err := setRow(f, SheetConversations, 1, conversationHeader); err != nil {
		return err
	}
	for i, c := range st.Conversations {
		started := ""
		if c.StartTimeUnixSecs > 0 {
			started = time.Unix(c.StartTimeUnixSecs, 0).UTC().Format(time.RFC3339)
		}
		row := []any{
			c.ConversationID,
			started,
			c.CallDurationSecs,
			c.Status,
			c.CallSuccessful,
			c.TelefonoDestino,
			c.NombrePaciente,
			c.Producto,
			c.Summary,
		}
		if err := setRow(f, SheetConversations, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}
