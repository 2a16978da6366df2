package notify

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/Darkness4/mp4-concat-go/utils/ptr"
)

// NotificationFormats is a collection of formats for notifications.
type NotificationFormats struct {
	ConfigReloaded NotificationFormat `yaml:"configReloaded,omitempty"`
	Panicked       NotificationFormat `yaml:"panicked,omitempty"`
	Finished       NotificationFormat `yaml:"finished,omitempty"`
	Error          NotificationFormat `yaml:"error,omitempty"`
	Deleted        NotificationFormat `yaml:"deleted,omitempty"`
}

// NotificationFormat is a format for a notification.
type NotificationFormat struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Title    string `yaml:"title,omitempty"`
	Message  string `yaml:"message,omitempty"`
	Priority int    `yaml:"priority,omitempty"`
}

// NotificationTemplate is a template for a notification.
type NotificationTemplate struct {
	TitleTemplate   *template.Template
	MessageTemplate *template.Template
}

// NotificationTemplates is a collection of templates for notifications.
type NotificationTemplates struct {
	ConfigReloaded NotificationTemplate
	Panicked       NotificationTemplate
	Finished       NotificationTemplate
	Error          NotificationTemplate
	Deleted        NotificationTemplate
}

// DefaultNotificationFormats is the default notification formats.
var DefaultNotificationFormats = NotificationFormats{
	ConfigReloaded: NotificationFormat{
		Enabled:  ptr.Ref(true),
		Title:    "config reloaded",
		Priority: 10,
	},
	Panicked: NotificationFormat{
		Enabled:  ptr.Ref(true),
		Title:    "panicked",
		Message:  "{{ .Capture }}",
		Priority: 10,
	},
	Finished: NotificationFormat{
		Enabled:  ptr.Ref(true),
		Title:    "{{ .Job }}: concatenated {{ len .Inputs }} files",
		Message:  "{{ .Output }} ({{ .Size }} bytes)",
		Priority: 5,
	},
	Error: NotificationFormat{
		Enabled:  ptr.Ref(true),
		Title:    "{{ .Job }} failed",
		Message:  "{{ .Error }}",
		Priority: 10,
	},
	Deleted: NotificationFormat{
		Enabled:  ptr.Ref(false),
		Title:    "{{ .Job }}: deleted {{ len .Deleted }} files",
		Message:  "{{ range .Deleted }}{{ . }}\n{{ end }}",
		Priority: 3,
	},
}

func (old *NotificationFormat) applyNotificationFormatDefault(
	newFormat NotificationFormat,
) {
	if newFormat.Enabled != nil {
		old.Enabled = newFormat.Enabled
	}
	if newFormat.Title != "" {
		old.Title = newFormat.Title
	}
	if newFormat.Message != "" {
		old.Message = newFormat.Message
	}
	if newFormat.Priority != 0 {
		old.Priority = newFormat.Priority
	}
}

func applyNotificationFormatsDefault(newFormat NotificationFormats) NotificationFormats {
	formats := DefaultNotificationFormats
	formats.ConfigReloaded.applyNotificationFormatDefault(newFormat.ConfigReloaded)
	formats.Panicked.applyNotificationFormatDefault(newFormat.Panicked)
	formats.Finished.applyNotificationFormatDefault(newFormat.Finished)
	formats.Error.applyNotificationFormatDefault(newFormat.Error)
	formats.Deleted.applyNotificationFormatDefault(newFormat.Deleted)
	return formats
}

func initializeTemplate(name string, format NotificationFormat) (NotificationTemplate, error) {
	title, err := template.New(name + "Title").Parse(format.Title)
	if err != nil {
		return NotificationTemplate{}, err
	}
	message, err := template.New(name + "Message").Parse(format.Message)
	if err != nil {
		return NotificationTemplate{}, err
	}
	return NotificationTemplate{
		TitleTemplate:   title,
		MessageTemplate: message,
	}, nil
}

func initializeTemplates(formats NotificationFormats) (t NotificationTemplates, err error) {
	if t.ConfigReloaded, err = initializeTemplate("ConfigReloaded", formats.ConfigReloaded); err != nil {
		return t, err
	}
	if t.Panicked, err = initializeTemplate("Panicked", formats.Panicked); err != nil {
		return t, err
	}
	if t.Finished, err = initializeTemplate("Finished", formats.Finished); err != nil {
		return t, err
	}
	if t.Error, err = initializeTemplate("Error", formats.Error); err != nil {
		return t, err
	}
	if t.Deleted, err = initializeTemplate("Deleted", formats.Deleted); err != nil {
		return t, err
	}
	return t, nil
}

// FormatedNotifier is a notifier that formats the notifications.
type FormatedNotifier struct {
	BaseNotifier
	NotificationFormats
	NotificationTemplates
}

// NewFormatedNotifier creates a new FormatedNotifier.
//
// Unset fields of formats fall back to DefaultNotificationFormats.
func NewFormatedNotifier(
	notifier BaseNotifier,
	formats NotificationFormats,
) (*FormatedNotifier, error) {
	formats = applyNotificationFormatsDefault(formats)
	templates, err := initializeTemplates(formats)
	if err != nil {
		return nil, err
	}
	return &FormatedNotifier{
		BaseNotifier:          notifier,
		NotificationFormats:   formats,
		NotificationTemplates: templates,
	}, nil
}

func (n *FormatedNotifier) send(
	ctx context.Context,
	format NotificationFormat,
	tmpl NotificationTemplate,
	data any,
) error {
	if format.Enabled == nil || !*format.Enabled {
		return nil
	}
	var titleSB strings.Builder
	var messageSB strings.Builder
	if err := tmpl.TitleTemplate.Execute(&titleSB, data); err != nil {
		return err
	}
	if err := tmpl.MessageTemplate.Execute(&messageSB, data); err != nil {
		return err
	}
	return n.Notify(ctx, titleSB.String(), messageSB.String(), format.Priority)
}

// NotifyConfigReloaded sends a notification that the config was reloaded.
func (n *FormatedNotifier) NotifyConfigReloaded(ctx context.Context) error {
	return n.send(ctx, n.NotificationFormats.ConfigReloaded, n.NotificationTemplates.ConfigReloaded, struct{}{})
}

// NotifyPanicked sends a notification that a job panicked.
func (n *FormatedNotifier) NotifyPanicked(ctx context.Context, capture any) error {
	return n.send(ctx, n.NotificationFormats.Panicked, n.NotificationTemplates.Panicked, struct {
		Capture any
	}{
		Capture: capture,
	})
}

// NotifyFinished sends a notification that a job produced an output.
func (n *FormatedNotifier) NotifyFinished(
	ctx context.Context,
	job string,
	labels map[string]string,
	output string,
	inputs []string,
	size int64,
	duration time.Duration,
) error {
	return n.send(ctx, n.NotificationFormats.Finished, n.NotificationTemplates.Finished, struct {
		Job      string
		Labels   map[string]string
		Output   string
		Inputs   []string
		Size     int64
		Duration time.Duration
	}{
		Job:      job,
		Labels:   labels,
		Output:   output,
		Inputs:   inputs,
		Size:     size,
		Duration: duration,
	})
}

// NotifyError sends a notification that a job failed.
func (n *FormatedNotifier) NotifyError(
	ctx context.Context,
	job string,
	labels map[string]string,
	err error,
) error {
	return n.send(ctx, n.NotificationFormats.Error, n.NotificationTemplates.Error, struct {
		Job    string
		Labels map[string]string
		Error  error
	}{
		Job:    job,
		Labels: labels,
		Error:  err,
	})
}

// NotifyDeleted sends a notification that sources were deleted.
func (n *FormatedNotifier) NotifyDeleted(
	ctx context.Context,
	job string,
	labels map[string]string,
	output string,
	deleted []string,
) error {
	if len(deleted) == 0 {
		return nil
	}
	return n.send(ctx, n.NotificationFormats.Deleted, n.NotificationTemplates.Deleted, struct {
		Job     string
		Labels  map[string]string
		Output  string
		Deleted []string
	}{
		Job:     job,
		Labels:  labels,
		Output:  output,
		Deleted: deleted,
	})
}
