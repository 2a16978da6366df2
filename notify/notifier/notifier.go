// Package notifier holds the notifier used by the program.
package notifier

import (
	"context"
	"time"

	"github.com/Darkness4/mp4-concat-go/notify"
)

// Notifier is the notifier used to notify the user about the jobs.
var Notifier = func() *notify.FormatedNotifier {
	n, err := notify.NewFormatedNotifier(
		notify.NewDummyNotifier(),
		notify.DefaultNotificationFormats,
	)
	if err != nil {
		panic(err)
	}
	return n
}()

// NotifyConfigReloaded notifies the user that the configuration has been reloaded.
func NotifyConfigReloaded(ctx context.Context) error {
	return Notifier.NotifyConfigReloaded(ctx)
}

// NotifyPanicked notifies the user that a job has panicked.
func NotifyPanicked(ctx context.Context, capture any) error {
	return Notifier.NotifyPanicked(ctx, capture)
}

// NotifyFinished notifies the user that a job produced an output.
func NotifyFinished(
	ctx context.Context,
	job string,
	labels map[string]string,
	output string,
	inputs []string,
	size int64,
	duration time.Duration,
) error {
	return Notifier.NotifyFinished(ctx, job, labels, output, inputs, size, duration)
}

// NotifyError notifies the user that a job failed.
func NotifyError(ctx context.Context, job string, labels map[string]string, err error) error {
	return Notifier.NotifyError(ctx, job, labels, err)
}

// NotifyDeleted notifies the user that sources have been deleted.
func NotifyDeleted(
	ctx context.Context,
	job string,
	labels map[string]string,
	output string,
	deleted []string,
) error {
	return Notifier.NotifyDeleted(ctx, job, labels, output, deleted)
}
