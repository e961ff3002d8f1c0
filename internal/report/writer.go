// Package report renders a finished survey as an Excel workbook with a
// summary sheet and a per-host inventory sheet.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/netsweep/network-survey-agent/internal/models"
)

const (
	summarySheet = "Summary"
	hostsSheet   = "Hosts"
)

var hostsHeader = []string{"Address", "Hostname", "Subnet", "Open Ports", "OS Class", "Latency (ms)"}

// Write renders the survey and its discovered hosts to an xlsx file at path.
func Write(path string, survey models.Survey, hosts []models.Host) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeSummary(f, survey, hosts); err != nil {
		return err
	}
	if err := writeHosts(f, hosts); err != nil {
		return err
	}
	// Drop the default sheet so Summary opens first.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, survey models.Survey, hosts []models.Host) error {
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	f.SetActiveSheet(index)

	byClass := map[models.OSClass]int{}
	for _, host := range hosts {
		byClass[host.OSClass]++
	}

	rows := [][]any{
		{"Survey ID", survey.ID},
		{"State", survey.State.Value()},
		{"Targets", strings.Join(survey.Targets, ", ")},
		{"Addresses Scanned", survey.Total},
		{"Hosts Discovered", len(hosts)},
		{"Started", survey.StartedAt.Format(time.RFC3339)},
		{"Finished", survey.FinishedAt.Format(time.RFC3339)},
		{"Duration", survey.FinishedAt.Sub(survey.StartedAt).Round(time.Second).String()},
		{},
		{"OS Class", "Count"},
		{"Windows", byClass[models.OSClassWindows]},
		{"Unix", byClass[models.OSClassUnix]},
		{"Network", byClass[models.OSClassNetwork]},
		{"Unknown", byClass[models.OSClassUnknown]},
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	return nil
}

func writeHosts(f *excelize.File, hosts []models.Host) error {
	if _, err := f.NewSheet(hostsSheet); err != nil {
		return fmt.Errorf("failed to create hosts sheet: %w", err)
	}

	header := make([]any, len(hostsHeader))
	for i, h := range hostsHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(hostsSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write hosts header: %w", err)
	}

	for i, host := range hosts {
		ports := make([]string, len(host.OpenPorts))
		for j, p := range host.OpenPorts {
			ports[j] = fmt.Sprintf("%d", p)
		}
		row := []any{
			host.Address,
			host.Hostname,
			host.Subnet,
			strings.Join(ports, ", "),
			host.OSClass.Value(),
			float64(host.Latency.Microseconds()) / 1000.0,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(hostsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write host row: %w", err)
		}
	}
	return nil
}
