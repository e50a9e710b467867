package logging

import (
	"context"
	"log/slog"
	"runtime"
)

// handler adapts slog records into distributor records. The last component
// attribute becomes the record target.
type handler struct {
	dist   *Distributor
	attrs  []slog.Attr
	groups []string
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.dist.level.Level()
}

func (h *handler) Handle(_ context.Context, record slog.Record) error {
	if record.Level < h.dist.level.Level() {
		return nil
	}

	fields := make([]Field, 0, record.NumAttrs()+len(h.attrs))
	flattenAttrs(&fields, nil, h.attrs)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&fields, h.groups, attr)
		return true
	})

	rec := Record{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
	}
	filtered := fields[:0]
	for _, f := range fields {
		if f.Key == FieldComponent {
			// Innermost component wins.
			rec.Target = f.Value
			continue
		}
		filtered = append(filtered, f)
	}
	rec.Fields = filtered

	if record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		frame, _ := frames.Next()
		rec.File = frame.File
		rec.Line = frame.Line
	}

	h.dist.Publish(rec)
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	// Attributes added under a group carry the group prefix now, since
	// h.attrs is flattened without one.
	scoped := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		if len(h.groups) > 0 && attr.Key != FieldComponent {
			attr = nestAttr(h.groups, attr)
		}
		scoped = append(scoped, attr)
	}
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), scoped...)
	return &next
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = appendPrefix(h.groups, name)
	return &next
}

func nestAttr(groups []string, attr slog.Attr) slog.Attr {
	for i := len(groups) - 1; i >= 0; i-- {
		attr = slog.Attr{Key: groups[i], Value: slog.GroupValue(attr)}
	}
	return attr
}
