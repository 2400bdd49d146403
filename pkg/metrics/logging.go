package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
)

// LogFormatter wraps a logrus.Formatter, forwarding every entry to New Relic
// with its fields and decorating the local output with linking metadata.
//
// The stock nrlogrus formatter drops entry fields, which carry most of the
// context in this codebase.
type LogFormatter struct {
	app  *newrelic.Application
	next logrus.Formatter
}

func NewLogFormatter(app *newrelic.Application, next logrus.Formatter) *LogFormatter {
	return &LogFormatter{
		app:  app,
		next: next,
	}
}

func (f *LogFormatter) Format(e *logrus.Entry) ([]byte, error) {
	formatted, err := f.next.Format(e)
	if err != nil {
		return nil, err
	}

	var txn *newrelic.Transaction
	if e.Context != nil {
		txn = newrelic.FromContext(e.Context)
	}

	data := newrelic.LogData{
		Severity: e.Level.String(),
		Message:  forwardedMessage(e),
	}

	var metadata newrelic.EnricherOption
	if txn != nil {
		txn.RecordLog(data)
		metadata = newrelic.FromTxn(txn)
	} else {
		f.app.RecordLog(data)
		metadata = newrelic.FromApp(f.app)
	}

	b := bytes.NewBuffer(bytes.TrimRight(formatted, "\n"))
	if err := newrelic.EnrichLog(b, metadata); err != nil {
		return nil, err
	}
	b.WriteByte('\n')

	return b.Bytes(), nil
}

// forwardedMessage folds the entry's error and remaining fields into the
// message, since log forwarding only carries the message text.
func forwardedMessage(e *logrus.Entry) string {
	if len(e.Data) == 0 {
		return e.Message
	}

	errString := "<nil>"
	fields := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		if err, ok := v.(error); ok && k == logrus.ErrorKey {
			errString = fmt.Sprintf("%q", err.Error())
			continue
		}
		fields[k] = v
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return e.Message
	}
	return fmt.Sprintf("message=%q, error=%s, data=%s", e.Message, errString, encoded)
}
