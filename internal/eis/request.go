// Package eis speaks the getDocsIP integration protocol of the public
// procurement service: envelope construction, response interpretation,
// archive handling and authenticated downloads.
package eis

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultEndpoint is the production getDocsIP service URL.
	DefaultEndpoint = "https://int44.zakupki.gov.ru/eis-integration/services/getDocsIP"

	// SubsystemPRIZ selects 44-FZ placement notices, SubsystemRI223 the
	// 223-FZ registry.
	SubsystemPRIZ  = "PRIZ"
	SubsystemRI223 = "RI223"

	nsSOAP = "http://schemas.xmlsoap.org/soap/envelope/"
)

const orgRegionEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ws="http://zakupki.gov.ru/fz44/get-docs-ip/ws">
  <soapenv:Header>
    <individualPerson_token>%s</individualPerson_token>
  </soapenv:Header>
  <soapenv:Body>
    <ws:getDocsByOrgRegionRequest>
      <index>
        <id>%s</id>
        <createDateTime>%s</createDateTime>
        <mode>PROD</mode>
      </index>
      <selectionParams>
        <orgRegion>%02d</orgRegion>
        <subsystemType>%s</subsystemType>
        <%s>%s</%s>
        <periodInfo><exactDate>%s</exactDate></periodInfo>
      </selectionParams>
    </ws:getDocsByOrgRegionRequest>
  </soapenv:Body>
</soapenv:Envelope>`

const registryNumberEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soapenv:Envelope xmlns:soapenv="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ws="http://zakupki.gov.ru/fz44/get-docs-ip/ws">
  <soapenv:Header>
    <individualPerson_token>%s</individualPerson_token>
  </soapenv:Header>
  <soapenv:Body>
    <ws:getDocsByReestrNumberRequest>
      <index>
        <id>%s</id>
        <createDateTime>%s</createDateTime>
        <mode>PROD</mode>
      </index>
      <selectionParams>
        <subsystemType>PRIZ</subsystemType>
        <reestrNumber>%s</reestrNumber>
      </selectionParams>
    </ws:getDocsByReestrNumberRequest>
  </soapenv:Body>
</soapenv:Envelope>`

// BuildDocsByOrgRegion renders a getDocsByOrgRegionRequest envelope for one
// (region, subsystem, document type, exact date) slice. A fresh correlation
// id and the current timestamp are embedded on every call. The token is
// escaped, never validated.
func BuildDocsByOrgRegion(token string, region int, subsystem, docType, exactDate string) string {
	typeElem := "documentType44"
	if subsystem == SubsystemRI223 {
		typeElem = "documentType223"
	}
	return fmt.Sprintf(orgRegionEnvelope,
		escapeXML(token), uuid.NewString(), requestTimestamp(),
		region, subsystem, typeElem, escapeXML(docType), typeElem, exactDate)
}

// BuildDocsByRegistryNumber renders a getDocsByReestrNumberRequest envelope
// asking for the full document package of one purchase.
func BuildDocsByRegistryNumber(token, registryNumber string) string {
	return fmt.Sprintf(registryNumberEnvelope,
		escapeXML(token), uuid.NewString(), requestTimestamp(), escapeXML(registryNumber))
}

func requestTimestamp() string {
	return time.Now().Format("2006-01-02T15:04:05")
}

func escapeXML(s string) string {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return ""
	}
	return b.String()
}
