// Package dashboard composes widget instances into a named layout and runs
// their jobs.
//
// A Dashboard is built once from a Descriptor. Every client connection of its
// pub/sub namespace is joined to the room named after the dashboard, and every
// job result is emitted to that room as "<widget id>:update".
//
// Jobs run on robfig/cron: each task fires immediately on Start, then once per
// period until the task or the dashboard is stopped. A failing or panicking
// tick is logged and counted; the task stays scheduled.
package dashboard
