// MODUL: caption
// ZWECK: Bereinigung von Suchtexten vor der Prompt-Formatierung (OFA pre_caption)
// INPUT: Freitext, maximale Wortanzahl
// OUTPUT: bereinigter, kleingeschriebener Text
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: golang.org/x/text/cases, github.com/dlclark/regexp2 (extern)
// HINWEISE: \s umfasst Unicode-Whitespace, nicht nur ASCII

package grounding

import (
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	whitespaceRun = regexp2.MustCompile(`\s{2,}`, regexp2.None)

	captionReplacer = strings.NewReplacer("-", " ", "/", " ", "<person>", "person")
)

// PreCaption normalisiert einen Suchtext:
//
//  1. Kleinschreibung
//  2. fuehrende ,.!?*#:;~ entfernen
//  3. "-" und "/" durch Leerzeichen, "<person>" durch "person" ersetzen
//  4. Whitespace-Folgen (>= 2) zu einem Leerzeichen
//  5. abschliessende Zeilenumbrueche, dann Leerzeichen an beiden Enden trimmen
//  6. hoechstens maxWords Woerter behalten (maxWords <= 0: alle)
func PreCaption(text string, maxWords int) string {
	caption := cases.Lower(language.Und).String(text)
	caption = strings.TrimLeft(caption, ",.!?*#:;~")
	caption = captionReplacer.Replace(caption)

	if collapsed, err := whitespaceRun.Replace(caption, " ", -1, -1); err == nil {
		caption = collapsed
	}

	caption = strings.TrimRight(caption, "\n")
	caption = strings.Trim(caption, " ")

	words := strings.Split(caption, " ")
	if maxWords > 0 && len(words) > maxWords {
		caption = strings.Join(words[:maxWords], " ")
	}
	return caption
}
