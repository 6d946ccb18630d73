package extract

import (
	"fmt"
	"strings"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/model"
)

// systemPrompt frames the extraction task. It is constant across requests so
// the remote provider can cache it.
const systemPrompt = `Du bist ein juristischer Assistent einer Anwaltskanzlei für Verkehrsrecht. Du analysierst eingehende E-Mails samt Anhängen (Fahrzeugscheine, Unfallberichte, Gutachten) und extrahierst strukturierte Daten für eine neue Akte. Du erfindest keine Daten. Du antwortest ausschließlich mit validem JSON ohne Markdown.`

// userPromptTemplate carries the email, attachment context, and the exact
// output schema the model must fill.
const userPromptTemplate = `Analysiere die folgende E-Mail (inklusive Header, Signatur, Footer) und die Inhalte der Anhänge.

WICHTIG:
1. Suche aktiv nach Telefonnummern und E-Mail-Adressen des Mandanten.
2. Fahrzeugschein-Daten: Kennzeichen, Marke/Modell (D.1/D.3), Nennleistung in KW (P.2), Erstzulassung (B).
3. Suche nach Unfalldaten (Datum, Ort, Kennzeichen, Schadennummer).
4. Achte auf MEHRERE Kennzeichen (z.B. Anhänger).

E-MAIL:
Von: %s
An: %s
Betreff: %s
Datum: %s

%s

ANHÄNGE:
%s

AUFGABE:
Antworte NUR mit validem JSON (ohne Markdown), das genau diesem Schema entspricht. Setze null für unbekannte Werte. Gib für jedes gefüllte Feld eine Konfidenz zwischen 0.0 und 1.0 im "confidence"-Objekt an, mit dem Feldpfad als Schlüssel (z.B. "mandant.nachname").

{
  "mandant": {
    "vorname": "", "nachname": "", "anrede": "Herr/Frau",
    "strasse": "", "plz": "", "ort": "",
    "email": "", "telefon": ""
  },
  "gegner_versicherung": {
    "name": "", "schadennummer": "",
    "strasse": "", "plz": "", "ort": ""
  },
  "unfall": {
    "datum": "YYYY-MM-DD", "ort": "",
    "kennzeichen_mandant": "", "kennzeichen_gegner": "",
    "weitere_kennzeichen": []
  },
  "fahrzeug": {
    "typ": "Marke Modell", "kw": "110", "ez": "YYYY-MM-DD"
  },
  "betreff": "",
  "zusammenfassung": "",
  "handlungsbedarf": "",
  "confidence": {"mandant.nachname": 0.9}
}`

// attachmentContext is the per-attachment text gathered before prompting.
type attachmentContext struct {
	attachment model.Attachment
	text       string
}

// BuildPrompt assembles the extraction prompt from a parsed email and the
// text gathered from its attachments. Attachments classified unknown are
// summarized as unreadable rather than included; images contribute a
// descriptor line since the text providers cannot read them.
func BuildPrompt(parsed *model.ParsedEmail, contexts []attachmentContext, cfg config.PipelineConfig) string {
	body := truncate(parsed.Body, cfg.MaxBodyChars)

	var att strings.Builder
	if len(contexts) == 0 {
		att.WriteString("(keine Anhänge)")
	}
	for i, c := range contexts {
		if i > 0 {
			att.WriteString("\n\n")
		}
		name := c.attachment.Filename
		if name == "" {
			name = fmt.Sprintf("anhang-%d", i+1)
		}
		switch c.attachment.Kind {
		case model.KindUnknown:
			fmt.Fprintf(&att, "--- unreadable attachment: %s ---", name)
		case model.KindImage:
			fmt.Fprintf(&att, "--- Bildanhang (nicht ausgelesen): %s (%d Bytes) ---", name, c.attachment.Size)
		default:
			fmt.Fprintf(&att, "--- Anhang: %s ---\n%s", name, truncate(c.text, cfg.MaxAttachmentChars))
		}
	}

	return fmt.Sprintf(userPromptTemplate,
		parsed.From, parsed.To, parsed.Subject, parsed.Date, body, att.String())
}

// truncate cuts s to at most max runes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n[... gekürzt ...]"
}
