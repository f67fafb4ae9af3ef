package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const reportSheet = "Sheet1"

type XlsHeaderCol struct {
	col   string
	name  string
	width float64
}

// MailSettings are read from the environment, see mailSettingsFromEnv.
type MailSettings struct {
	Domain     string
	Key        string
	Sender     string
	Recipients string
}

// ReleaseTable is the xlsx summary of a run, optionally sent by mail.
type ReleaseTable struct {
	header       []XlsHeaderCol
	excelize     *excelize.File
	lastRowIndex int
	path         string
	headerStyle  *excelize.Style
	bodyStyle    *excelize.Style
	mailSubject  string
	mailBody     string
	log          Logger

	// mailClient overrides the http client used by mailgun
	mailClient *http.Client
}

func NewReleaseTable(path, projectKey, version string, log Logger) *ReleaseTable {
	if log == nil {
		log = discardLogger{}
	}

	return &ReleaseTable{
		header: []XlsHeaderCol{
			{col: "A", name: "Project", width: 12},
			{col: "B", name: "Version", width: 20},
			{col: "C", name: "Id", width: 10},
			{col: "D", name: "Released", width: 10},
			{col: "E", name: "Start date", width: 14},
			{col: "F", name: "Release date", width: 14},
			{col: "G", name: "Action", width: 20},
		},
		path: path,
		headerStyle: &excelize.Style{
			Border: []excelize.Border{
				{Type: "left", Color: "#000000", Style: 1},
				{Type: "top", Color: "#000000", Style: 1},
				{Type: "right", Color: "#000000", Style: 1},
				{Type: "bottom", Color: "#000000", Style: 1},
			},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#90C225"}, Pattern: 1},
			Font:      &excelize.Font{Family: "Calibri", Size: 8, Bold: true, Color: "#FFFFFF"},
			Alignment: &excelize.Alignment{WrapText: true, Horizontal: "center", Vertical: "center"},
		},
		bodyStyle: &excelize.Style{
			Border: []excelize.Border{
				{Type: "left", Color: "#000000", Style: 1},
				{Type: "top", Color: "#000000", Style: 1},
				{Type: "right", Color: "#000000", Style: 1},
				{Type: "bottom", Color: "#000000", Style: 1},
			},
			Font:      &excelize.Font{Family: "Calibri", Size: 10, Color: "#000000"},
			Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top"},
		},
		mailSubject: fmt.Sprintf("Jira version %s %s", projectKey, version),
		mailBody:    fmt.Sprintf("Hello,\n\nthe state of version %s of project %s is attached.", version, projectKey),
		log:         log,
	}
}

func (file *ReleaseTable) CreateFile() error {
	if len(file.header) == 0 {
		return errors.New("table header is empty")
	}

	file.excelize = excelize.NewFile()
	file.lastRowIndex = 1

	header := []string{}
	for _, r := range file.header {
		header = append(header, r.name)
	}

	if err := file.AddRow(header); err != nil {
		return err
	}

	return file.formatHeaderStyle()
}

func (file *ReleaseTable) formatHeaderStyle() error {
	style, err := file.excelize.NewStyle(file.headerStyle)
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	last := file.header[len(file.header)-1].col
	if err := file.excelize.SetCellStyle(reportSheet, file.header[0].col+"1", last+"1", style); err != nil {
		return errors.Wrap(err, "applying header style")
	}

	for _, col := range file.header {
		if err := file.excelize.SetColWidth(reportSheet, col.col, col.col, col.width); err != nil {
			return errors.Wrap(err, "setting col width")
		}
	}

	return nil
}

func (file *ReleaseTable) formatBodyStyle() error {
	if file.lastRowIndex <= 2 {
		return nil
	}

	style, err := file.excelize.NewStyle(file.bodyStyle)
	if err != nil {
		return errors.Wrap(err, "creating body style")
	}

	end := fmt.Sprintf("%s%d", file.header[len(file.header)-1].col, file.lastRowIndex-1)
	if err := file.excelize.SetCellStyle(reportSheet, "A2", end, style); err != nil {
		return errors.Wrap(err, "applying body style")
	}

	return nil
}

func (file *ReleaseTable) AddRow(rowData []string) error {
	if len(rowData) > len(file.header) {
		return errors.Errorf("row %d has %d cells, table has %d columns", file.lastRowIndex, len(rowData), len(file.header))
	}

	for i, r := range rowData {
		cell := fmt.Sprintf("%s%d", file.header[i].col, file.lastRowIndex)
		if err := file.excelize.SetCellValue(reportSheet, cell, r); err != nil {
			return errors.Wrapf(err, "setting cell %s", cell)
		}
	}

	file.lastRowIndex++

	return nil
}

// AddResult appends the row describing the outcome of a run.
func (file *ReleaseTable) AddResult(projectKey string, result *Result) error {
	version := result.Version
	if version == nil {
		version = Version{}
	}

	actions := []string{}
	for _, action := range result.Actions {
		actions = append(actions, string(action))
	}
	if len(actions) == 0 {
		actions = append(actions, string(ActionNone))
	}

	return file.AddRow([]string{
		projectKey,
		version.Name(),
		version.ID(),
		fmt.Sprintf("%t", version.Released()),
		stringField(version, "startDate", "userStartDate"),
		stringField(version, "releaseDate", "userReleaseDate"),
		strings.Join(actions, ", "),
	})
}

func stringField(version Version, keys ...string) string {
	for _, key := range keys {
		if value, ok := version[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func (file *ReleaseTable) Write() error {
	if err := file.formatBodyStyle(); err != nil {
		return err
	}

	if err := file.excelize.SaveAs(file.path); err != nil {
		return errors.Wrapf(err, "writing %s", file.path)
	}

	file.log.Info("report saved to %s", file.path)

	return nil
}

func (file *ReleaseTable) Close() error {
	if file.excelize == nil {
		return nil
	}
	return file.excelize.Close()
}

func (file *ReleaseTable) Send(ctx context.Context, settings MailSettings) error {
	if settings.Domain == "" || settings.Key == "" || settings.Sender == "" || settings.Recipients == "" {
		return errors.New("MAILGUN_DOMAIN, MAILGUN_KEY, EMAIL_SENDER and RECIPIENTS must be set to send the report")
	}

	mg := mailgun.NewMailgun(settings.Domain, settings.Key)
	if file.mailClient != nil {
		mg.SetClient(file.mailClient)
	}

	message := mg.NewMessage(settings.Sender, file.mailSubject, file.mailBody, settings.Sender)
	for _, recipient := range strings.Split(settings.Recipients, ",") {
		if recipient = strings.TrimSpace(recipient); recipient != "" {
			message.AddBCC(recipient)
		}
	}
	message.AddAttachment(file.path)

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp, id, err := mg.Send(ctx, message)
	if err != nil {
		return errors.Wrapf(err, "mailgun message %q id %q", resp, id)
	}

	file.log.Info("report mailed to %s", settings.Recipients)

	return nil
}

func mailSettingsFromEnv(lookupEnv func(string) (string, bool)) MailSettings {
	get := func(key string) string {
		value, _ := lookupEnv(key)
		return value
	}

	return MailSettings{
		Domain:     get("MAILGUN_DOMAIN"),
		Key:        get("MAILGUN_KEY"),
		Sender:     get("EMAIL_SENDER"),
		Recipients: get("RECIPIENTS"),
	}
}
