package mailer

import (
	"fmt"
	"strings"
)

const signature = "Maison des Enfants - ESF"

type Reminder struct {
	To        string
	Code      string
	URL       string
	ChildName string
}

func BuildReminder(r Reminder) Message {
	child := strings.TrimSpace(r.ChildName)
	var b strings.Builder
	b.WriteString("Bonjour,\n\n")
	fmt.Fprintf(&b, "La fiche sanitaire de %s n'a pas encore été complétée.\n", child)
	b.WriteString("Merci de la remplir en suivant ce lien :\n")
	fmt.Fprintf(&b, "%s\n\n", r.URL)
	fmt.Fprintf(&b, "Code d'accès : %s\n\n", r.Code)
	b.WriteString("Cordialement,\n")
	b.WriteString(signature)
	return Message{
		To:      r.To,
		Subject: fmt.Sprintf("Rappel : Fiche sanitaire de %s à compléter", child),
		Body:    b.String(),
	}
}

func BuildPasswordReset(to, link string) Message {
	var b strings.Builder
	b.WriteString("Bonjour,\n\n")
	b.WriteString("Une réinitialisation de votre mot de passe a été demandée.\n")
	fmt.Fprintf(&b, "Pour choisir un nouveau mot de passe, ouvrez ce lien :\n%s\n\n", link)
	b.WriteString("Si vous n'êtes pas à l'origine de cette demande, ignorez ce message.\n\n")
	b.WriteString(signature)
	return Message{
		To:      to,
		Subject: "Réinitialisation de votre mot de passe",
		Body:    b.String(),
	}
}
