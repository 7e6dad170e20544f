package mailer

import "fmt"

// Challenge email copy per language. Unknown or empty languages fall back to
// English rather than sending an empty body.
const (
	challengeSubjectEN = "Verification Code"
	challengeSubjectFR = "Code de Vérification"
)

// ChallengeEmail renders the step-up verification message for the given
// language ("en" or "fr", default English).
func ChallengeEmail(language, code, productName string) (subject, html string) {
	switch language {
	case "fr":
		subject = challengeSubjectFR
		html = fmt.Sprintf(
			"<p>Votre code de vérification est: </p><h3>%s</h3>"+
				"<p>Si vous n'êtes pas la cause de ce courriel, veuillez réinitialiser votre mot de passe "+
				"et contacter l'équipe d'assistance dès que possible.</p><br>"+
				"<p>Merci,</p><p>L'équipe %s</p>",
			code, productName,
		)
	default:
		subject = challengeSubjectEN
		html = fmt.Sprintf(
			"<p>Your verification code is: </p><h3>%s</h3>"+
				"<p>If you are not the cause of this email, please reset your password "+
				"and get in contact with the support team as soon as possible.</p><br>"+
				"<p>Thank you,</p><p>The %s Team</p>",
			code, productName,
		)
	}
	return subject, html
}

// ResetEmail renders the password-reset message around the one-time link.
func ResetEmail(resetURL, productName string) (subject, html string) {
	subject = fmt.Sprintf("%s Password Reset", productName)
	html = fmt.Sprintf(
		`<a href="%s">Click here to reset your password.</a>`+
			"<p>The link is 1 time use and expires in 1h.</p><br>"+
			"<p>Thank you,</p><p>The %s Team</p>",
		resetURL, productName,
	)
	return subject, html
}
