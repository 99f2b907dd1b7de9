package dataset

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/dativo-io/piiscan/internal/classifier"
)

// syntheticTemplates use {slot} placeholders; each slot appears at most once.
var syntheticTemplates = []string{
	"Contact {name} via email {email} or phone {phone}.",
	"Visa card {cc} expires on {date}.",
	"SSN for {name} is {ssn}.",
	"Server IP {ip} logged a request from {name} on {date}.",
	"Primary contact: {email}. Secondary: {phone}.",
	"Aadhaar {aadhaar} belongs to {name}, born {date}.",
	"Device {mac} registered to PAN {pan}.",
}

var slotTypes = map[string]classifier.PIIType{
	"name":    classifier.Person,
	"email":   classifier.Email,
	"phone":   classifier.PhoneNumber,
	"cc":      classifier.CreditCard,
	"ssn":     classifier.SSN,
	"ip":      classifier.IPAddress,
	"date":    classifier.Date,
	"aadhaar": classifier.Aadhaar,
	"mac":     classifier.MACAddress,
	"pan":     classifier.PAN,
}

var (
	firstNames = []string{"John", "Jane", "Alice", "Bob", "Carlos", "Emily"}
	lastNames  = []string{"Doe", "Smith", "Brown", "Johnson", "Davis", "Miller"}
	emailUsers = []string{"john.doe", "jane_smith", "a.brown", "user123"}
	domains    = []string{"example.com", "sample.org", "test.net"}
	cardPrefix = []string{"4", "51", "52", "53", "54", "55"}
)

// GenerateSynthetic returns n labeled examples built from fixed templates.
// The same seed always yields the same examples. Card numbers pass Luhn and
// Aadhaar numbers pass Verhoeff.
func GenerateSynthetic(n int, seed int64) []LabeledExample {
	g := &generator{rng: rand.New(rand.NewSource(seed))}
	out := make([]LabeledExample, 0, max(n, 0))
	for i := 0; i < n; i++ {
		tmpl := syntheticTemplates[g.rng.Intn(len(syntheticTemplates))]
		out = append(out, g.fill(tmpl))
	}
	return out
}

type generator struct {
	rng *rand.Rand
}

// fill expands tmpl, recording the offsets of every inserted value.
func (g *generator) fill(tmpl string) LabeledExample {
	var (
		b      strings.Builder
		labels []classifier.LabeledSpan
	)
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		slot := rest[open+1 : open+end]
		value := g.value(slot)
		start := b.Len()
		b.WriteString(value)
		labels = append(labels, classifier.LabeledSpan{
			Span: classifier.Span{Start: start, End: start + len(value), Text: value},
			Type: slotTypes[slot],
		})
		rest = rest[open+end+1:]
	}
	return LabeledExample{Text: b.String(), Labels: labels}
}

func (g *generator) pick(xs []string) string { return xs[g.rng.Intn(len(xs))] }

// between returns a uniform int in [lo, hi].
func (g *generator) between(lo, hi int) int { return lo + g.rng.Intn(hi-lo+1) }

func (g *generator) digits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + g.rng.Intn(10)))
	}
	return b.String()
}

func (g *generator) value(slot string) string {
	switch slot {
	case "name":
		return g.pick(firstNames) + " " + g.pick(lastNames)
	case "email":
		return g.pick(emailUsers) + "@" + g.pick(domains)
	case "phone":
		return fmt.Sprintf("(%d) %03d-%04d", g.between(200, 999), g.between(200, 999), g.between(0, 9999))
	case "cc":
		body := g.pick(cardPrefix)
		body += g.digits(15 - len(body))
		return fmt.Sprintf("%s%d", body, classifier.LuhnDigit(body))
	case "ssn":
		return fmt.Sprintf("%03d-%02d-%04d", g.between(100, 999), g.between(10, 99), g.between(1000, 9999))
	case "ip":
		return fmt.Sprintf("%d.%d.%d.%d", g.between(1, 254), g.between(1, 254), g.between(1, 254), g.between(1, 254))
	case "date":
		return fmt.Sprintf("%04d-%02d-%02d", g.between(1990, 2024), g.between(1, 12), g.between(1, 28))
	case "aadhaar":
		body := fmt.Sprintf("%d", g.between(2, 9)) + g.digits(10)
		full := fmt.Sprintf("%s%d", body, classifier.VerhoeffDigit(body))
		return full[:4] + " " + full[4:8] + " " + full[8:]
	case "mac":
		parts := make([]string, 6)
		for i := range parts {
			parts[i] = fmt.Sprintf("%02X", g.rng.Intn(256))
		}
		return strings.Join(parts, ":")
	case "pan":
		var b strings.Builder
		for i := 0; i < 5; i++ {
			b.WriteByte(byte('A' + g.rng.Intn(26)))
		}
		b.WriteString(g.digits(4))
		b.WriteByte(byte('A' + g.rng.Intn(26)))
		return b.String()
	default:
		return slot
	}
}
