package eis

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Result is the interpreted outcome of one protocol call: a fault message,
// an archive URL, or neither. An empty Result with no error means the
// service reported no data for the slice — the upstream makes that outcome
// indistinguishable from a silently malformed response, and we deliberately
// do not try to tell them apart.
type Result struct {
	ArchiveURL string
	Fault      string
}

// IsAuthFailure reports whether the fault message indicates a rejected
// token. The service has no dedicated fault code for this, so the message
// text is the only signal available.
func (r Result) IsAuthFailure() bool {
	return r.Fault != "" && strings.Contains(strings.ToLower(r.Fault), "token")
}

// Interpret parses a raw protocol response. It fails only on XML the parser
// cannot read; callers treat that as a per-slice transient error.
func Interpret(body []byte) (Result, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("malformed protocol response: %w", err)
	}

	fault := xmlquery.FindOne(doc, "//*[local-name()='Fault' and namespace-uri()='"+nsSOAP+"']")
	if fault != nil {
		msg := ""
		if fs := xmlquery.FindOne(fault, ".//*[local-name()='faultstring']"); fs != nil {
			msg = strings.TrimSpace(fs.InnerText())
		}
		if msg == "" {
			msg = strings.TrimSpace(fault.InnerText())
		}
		return Result{Fault: msg}, nil
	}

	if archive := xmlquery.FindOne(doc, "//*[local-name()='archiveUrl']"); archive != nil {
		if u := strings.TrimSpace(archive.InnerText()); u != "" {
			return Result{ArchiveURL: u}, nil
		}
	}

	return Result{}, nil
}
