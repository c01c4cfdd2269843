package extract

import (
	"reflect"
	"testing"

	"github.com/david/eis-harvester/internal/rules"
)

func testRules(t *testing.T) *rules.Rules {
	t.Helper()
	r, err := rules.Load("")
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	return r
}

func TestExtractFields(t *testing.T) {
	doc := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns2:epNotificationEF2020 xmlns:ns2="http://zakupki.gov.ru/oos/export/1">
  <commonInfo>
    <purchaseNumber> 0123456789 </purchaseNumber>
    <docPublishDate>2026-08-28T10:00:00</docPublishDate>
    <IKZ>262770123456</IKZ>
  </commonInfo>
  <notificationInfo>
    <procedureInfo>
      <collectingInfo>
        <applicationsStartDate>2026-08-28</applicationsStartDate>
        <applicationsEndDate>2026-09-05</applicationsEndDate>
      </collectingInfo>
    </procedureInfo>
    <placingWay><code>EF</code><name>Электронный аукцион</name></placingWay>
    <contractConditionsInfo><maxPriceInfo><maxPrice>1500000.00</maxPrice></maxPriceInfo></contractConditionsInfo>
    <currency><code>RUB</code></currency>
    <purchaseObjectInfo>разработка информационной системы</purchaseObjectInfo>
    <electronicPlace><name>ЕЭТП</name></electronicPlace>
  </notificationInfo>
  <customer><fullName>ГБУ Tестовый заказчик</fullName><INN>7701234567</INN><KPP>770101001</KPP></customer>
</ns2:epNotificationEF2020>`)

	n, err := Extract(doc, testRules(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"DocKind", n.DocKind, "epNotificationEF2020"},
		{"PurchaseNumber", n.PurchaseNumber, "0123456789"},
		{"IKZ", n.IKZ, "262770123456"},
		{"PlacingCode", n.PlacingCode, "EF"},
		{"PlacingName", n.PlacingName, "Электронный аукцион"},
		{"CustomerName", n.CustomerName, "ГБУ Tестовый заказчик"},
		{"CustomerINN", n.CustomerINN, "7701234567"},
		{"CustomerKPP", n.CustomerKPP, "770101001"},
		{"MaxPrice", n.MaxPrice, "1500000.00"},
		{"Currency", n.Currency, "RUB"},
		{"Name", n.Name, "разработка информационной системы"},
		{"PublishDate", n.PublishDate, "2026-08-28T10:00:00"},
		{"AppStart", n.AppStart, "2026-08-28"},
		{"AppEnd", n.AppEnd, "2026-09-05"},
		{"Platform", n.Platform, "ЕЭТП"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
}

func TestExtractIdempotent(t *testing.T) {
	doc := []byte(`<notice><purchaseNumber>42</purchaseNumber>
		<OKPD2><code>62.01</code></OKPD2>
		<attachment><fileName>spec.pdf</fileName><url>https://host/spec.pdf</url></attachment></notice>`)

	r := testRules(t)
	first, err := Extract(doc, r)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	second, err := Extract(doc, r)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated extraction differs:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestFallbackRanking(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "notificationNumber used when purchaseNumber absent",
			doc:  `<notice><notificationNumber>0123</notificationNumber></notice>`,
			want: "0123",
		},
		{
			name: "purchaseNumber wins when both present",
			doc: `<notice><notificationNumber>0123</notificationNumber>
				<purchaseNumber>9999</purchaseNumber></notice>`,
			want: "9999",
		},
		{
			name: "Blank purchaseNumber falls through",
			doc: `<notice><purchaseNumber>  </purchaseNumber>
				<notificationNumber>0123</notificationNumber></notice>`,
			want: "0123",
		},
	}

	r := testRules(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Extract([]byte(tt.doc), r)
			if err != nil {
				t.Fatalf("Extract failed: %v", err)
			}
			if n.PurchaseNumber != tt.want {
				t.Errorf("PurchaseNumber = %q, want %q", n.PurchaseNumber, tt.want)
			}
		})
	}
}

func TestNamespaceTolerance(t *testing.T) {
	variantA := `<n:notice xmlns:n="http://zakupki.gov.ru/oos/types/1"><n:purchaseNumber>77</n:purchaseNumber></n:notice>`
	variantB := `<m:notice xmlns:m="http://zakupki.gov.ru/223fz/purchase/1"><m:purchaseNumber>77</m:purchaseNumber></m:notice>`

	r := testRules(t)
	a, err := Extract([]byte(variantA), r)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	b, err := Extract([]byte(variantB), r)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if a.PurchaseNumber != "77" || b.PurchaseNumber != "77" {
		t.Errorf("extraction must not depend on the namespace: %q vs %q", a.PurchaseNumber, b.PurchaseNumber)
	}
}

func TestClassifierDeterminism(t *testing.T) {
	doc := `<notice><purchaseNumber>1</purchaseNumber>
		<item><OKPD2><code>62.01</code></OKPD2></item>
		<item><OKPD2><code>26.20.1</code></OKPD2></item>
		<item><OKPD2><code>62.01</code></OKPD2></item></notice>`

	n, err := Extract([]byte(doc), testRules(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if n.OKPD2 != "26.20.1,62.01" {
		t.Errorf("OKPD2 = %q, want %q", n.OKPD2, "26.20.1,62.01")
	}
}

func TestClassifierFallsBackToOKPD(t *testing.T) {
	doc := `<notice><purchaseNumber>1</purchaseNumber>
		<OKPD><code>72.20</code></OKPD></notice>`

	n, err := Extract([]byte(doc), testRules(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if n.OKPD2 != "72.20" {
		t.Errorf("OKPD2 = %q, want fallback to OKPD codes", n.OKPD2)
	}
}

func TestHarvestLinks(t *testing.T) {
	doc := `<notice><purchaseNumber>1</purchaseNumber>
		<attachments>
			<attachment>
				<fileName>техническое задание.docx</fileName>
				<url>https://host/files/1</url>
			</attachment>
			<attachment>
				<docName>проект контракта</docName>
				<docUrl>https://host/files/2</docUrl>
			</attachment>
		</attachments>
		<link href="https://host/files/3"/>
		<duplicate><url>HTTPS://HOST/FILES/1</url></duplicate>
		<notalink><url>ftp://host/file</url></notalink></notice>`

	n, err := Extract([]byte(doc), testRules(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(n.Links) != 3 {
		t.Fatalf("expected 3 links, got %d: %+v", len(n.Links), n.Links)
	}

	if n.Links[0].URL != "https://host/files/1" || n.Links[0].Name != "техническое задание.docx" {
		t.Errorf("first link = %+v", n.Links[0])
	}
	if n.Links[0].Heuristic != "tag" {
		t.Errorf("first link heuristic = %q, want tag", n.Links[0].Heuristic)
	}
	if n.Links[1].URL != "https://host/files/2" || n.Links[1].Name != "проект контракта" {
		t.Errorf("second link = %+v", n.Links[1])
	}
	if n.Links[2].URL != "https://host/files/3" || n.Links[2].Name != "" {
		t.Errorf("third link = %+v", n.Links[2])
	}
	if n.Links[2].Heuristic != "attr" {
		t.Errorf("third link heuristic = %q, want attr", n.Links[2].Heuristic)
	}
}

func TestExtractNoRootElement(t *testing.T) {
	if _, err := Extract([]byte("   \n"), testRules(t)); err == nil {
		t.Fatal("expected an error for a document without a root element")
	}
}
