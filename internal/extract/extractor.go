// Package extract derives the flat business view of one notice XML document.
// All field lookups match by local element name only: the upstream schema's
// namespace varies across document-type variants, and extraction must not
// care which variant produced the document.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/david/eis-harvester/internal/rules"
)

// Link is one discovered attachment reference. Heuristic records which
// discovery rule fired ("tag" for allow-listed element names, "attr" for
// link-bearing attributes) so the allow-lists can be tightened later from
// real-world provenance.
type Link struct {
	URL       string
	Name      string
	Heuristic string
}

// Notice is the extracted business view of one notice document. Date fields
// are opaque strings: upstream formats vary and are not normalized.
type Notice struct {
	DocKind        string
	PurchaseNumber string
	IKZ            string
	PlacingCode    string
	PlacingName    string
	CustomerName   string
	CustomerINN    string
	CustomerKPP    string
	MaxPrice       string
	Currency       string
	Name           string
	PublishDate    string
	AppStart       string
	AppEnd         string
	Platform       string
	OKPD2          string
	Links          []Link
}

// Extract parses one notice document and returns its business fields and
// attachment links. It is a pure function of (doc, r): repeated calls yield
// identical output. The only structural failure is a document without a
// root element; everything else degrades to empty fields.
func Extract(doc []byte, r *rules.Rules) (*Notice, error) {
	parsed, err := xmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse notice: %w", err)
	}

	root := firstElement(parsed)
	if root == nil {
		return nil, errors.New("notice has no root element")
	}

	n := &Notice{
		DocKind:        root.Data,
		PurchaseNumber: firstText(root, "purchaseNumber", "notificationNumber"),
		IKZ:            firstText(root, "IKZ", "ikz"),
		PlacingCode:    firstText(root, "placingWay/code"),
		PlacingName:    firstText(root, "placingWay/name"),
		CustomerName:   firstText(root, "customer/fullName", "customer/shortName", "organizationName"),
		CustomerINN:    firstText(root, "customer/INN", "customer/inn"),
		CustomerKPP:    firstText(root, "customer/KPP", "customer/kpp"),
		MaxPrice:       firstText(root, "maxPrice", "initialSum", "contractMaxPrice"),
		Currency:       firstText(root, "currency/code", "currency"),
		Name:           firstText(root, "purchaseObjectInfo", "subject", "purchaseName", "fullName"),
		PublishDate:    firstText(root, "publishDate", "docPublishDate", "placementDate"),
		AppStart:       firstText(root, "applicationsStartDate", "applicationStartDate"),
		AppEnd:         firstText(root, "applicationsEndDate", "applicationEndDate", "endDate"),
		Platform:       firstText(root, "electronicPlace/name", "electronicPlatformName", "platformName", "oosElectronicPlace/name"),
	}

	n.OKPD2 = classifierString(root)
	n.Links = harvestLinks(root, r)

	return n, nil
}

// classifierString collects OKPD2 codes, falling back to the older OKPD
// scheme when none are present, and serializes them deduplicated and sorted
// so re-runs of unchanged input are diffable.
func classifierString(root *xmlquery.Node) string {
	codes := collectCodes(root, "OKPD2")
	if len(codes) == 0 {
		codes = collectCodes(root, "OKPD")
	}
	if len(codes) == 0 {
		return ""
	}

	sort.SliceStable(codes, func(i, j int) bool {
		a, b := strings.ToLower(codes[i]), strings.ToLower(codes[j])
		if a != b {
			return a < b
		}
		return codes[i] < codes[j]
	})
	return strings.Join(codes, ",")
}

func collectCodes(root *xmlquery.Node, scheme string) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, el := range xmlquery.Find(root, localPath(scheme+"/code")) {
		v := strings.TrimSpace(el.InnerText())
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		codes = append(codes, v)
	}
	return codes
}

// harvestLinks scans every element of the document. Allow-listed element
// names with http-prefixed text become candidates, paired with a best-effort
// label found among the parent's descendants; allow-listed attributes with
// http-prefixed values become nameless candidates. URLs are deduplicated
// case-insensitively in first-seen order.
func harvestLinks(root *xmlquery.Node, r *rules.Rules) []Link {
	tagSet := lowerSet(r.AttachmentTags)
	attrSet := lowerSet(r.AttachmentAttrs)

	seen := make(map[string]struct{})
	var links []Link

	add := func(url, name, heuristic string) {
		key := strings.ToLower(url)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, Link{URL: url, Name: name, Heuristic: heuristic})
	}

	var walk func(n *xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		if n.Type == xmlquery.ElementNode {
			if _, ok := tagSet[strings.ToLower(n.Data)]; ok {
				if url := strings.TrimSpace(n.InnerText()); isHTTP(url) {
					add(url, nearbyName(n.Parent, r.NameTags), "tag")
				}
			}
			for _, attr := range n.Attr {
				if _, ok := attrSet[strings.ToLower(attr.Name.Local)]; ok && isHTTP(attr.Value) {
					add(attr.Value, "", "attr")
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return links
}

// nearbyName looks for a human label among the descendants of the link
// element's parent, trying each name tag in configured order.
func nearbyName(parent *xmlquery.Node, nameTags []string) string {
	if parent == nil {
		return ""
	}
	for _, tag := range nameTags {
		var found string
		var walk func(n *xmlquery.Node) bool
		walk = func(n *xmlquery.Node) bool {
			if n.Type == xmlquery.ElementNode && strings.EqualFold(n.Data, tag) {
				if v := strings.TrimSpace(n.InnerText()); v != "" {
					found = v
					return true
				}
			}
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if walk(child) {
					return true
				}
			}
			return false
		}
		for child := parent.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return found
			}
		}
	}
	return ""
}

// firstText evaluates ranked candidate paths and returns the first non-blank
// trimmed text. Candidates are slash-separated local-name paths.
func firstText(root *xmlquery.Node, candidates ...string) string {
	for _, c := range candidates {
		if n := xmlquery.FindOne(root, localPath(c)); n != nil {
			if v := strings.TrimSpace(n.InnerText()); v != "" {
				return v
			}
		}
	}
	return ""
}

// localPath converts "placingWay/code" into a namespace-agnostic descendant
// XPath expression matching by local element name only.
func localPath(p string) string {
	var b strings.Builder
	for i, seg := range strings.Split(p, "/") {
		if i == 0 {
			b.WriteString(".//")
		} else {
			b.WriteString("/")
		}
		b.WriteString("*[local-name()='" + seg + "']")
	}
	return b.String()
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for child := doc.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode {
			return child
		}
	}
	return nil
}

func isHTTP(s string) bool {
	return len(s) >= 4 && strings.EqualFold(s[:4], "http")
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = struct{}{}
	}
	return set
}
