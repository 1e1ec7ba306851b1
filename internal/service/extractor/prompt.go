package extractor

import (
	"fmt"
	"strings"

	"github.com/cahierdetextes/backend/internal/model"
)

// systemPrompt 约束模型只输出 {"lessonsData": [...]} 结构
const systemPrompt = `Tu convertis un document de cours de mathématiques en JSON pour un cahier de textes.
Réponds uniquement par un objet JSON de la forme {"lessonsData": [ ... ]}.

Règles :
1. Un seul chapitre par document, champ "chapter" obligatoire, "sections" toujours présent (tableau).
2. Hiérarchie maximale : chapitre → sections → subsections → items. Ne jamais générer "subsubsections".
3. Une section avec des sous-parties utilise "subsections": [{"name": "...", "items": [...]}], sinon "items" directement.
4. Chaque item a un "type" parmi : %s.
5. "description" : résumé de 12 mots maximum, ou "" si rien de pertinent.
6. Retirer les préfixes de numérotation (I-, 1), a)...) des champs "name".
7. Pas de HTML. Échapper chaque antislash LaTeX (\ devient \\). Formules en ligne entre $...$.
8. Pour une preuve, "title" vaut "". Pour un exercice, "title" est uniquement la référence (ex : "Page 15").`

func buildSystemPrompt() string {
	return fmt.Sprintf(systemPrompt, `"`+strings.Join(model.ItemTypes(), `", "`)+`"`)
}

func buildUserPrompt(filename, content string) string {
	var b strings.Builder
	b.WriteString("Document : ")
	b.WriteString(filename)
	b.WriteString("\n\n")
	b.WriteString(content)
	return b.String()
}
