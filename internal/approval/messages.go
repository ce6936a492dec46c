package approval

import (
	"html"
	"net/url"
	"strings"

	"github.com/valyala/fasttemplate"

	"sameieportalen.no/internal/mail"
)

var (
	requestText = fasttemplate.New(`Hei {{name}},

{{intro}}

Dokument: {{document_url}}

Godkjenn: {{approve_url}}
Avvis:    {{reject_url}}

Lenkene er personlige og kan bare brukes én gang.

Med vennlig hilsen
Styret
`, "{{", "}}")

	requestHTML = fasttemplate.New(`<p>Hei {{name}},</p>
<p>{{intro}}</p>
<p><a href="{{document_url}}">Åpne dokumentet</a></p>
<p>
  <a href="{{approve_url}}" style="padding:8px 16px;background:#2e7d32;color:#fff;text-decoration:none">Godkjenn</a>
  &nbsp;
  <a href="{{reject_url}}" style="padding:8px 16px;background:#c62828;color:#fff;text-decoration:none">Avvis</a>
</p>
<p>Lenkene er personlige og kan bare brukes én gang.</p>
<p>Med vennlig hilsen<br>Styret</p>
`, "{{", "}}")

	requestSubject  = fasttemplate.New("Godkjenning av protokoll: {{document}}", "{{", "}}")
	reminderSubject = fasttemplate.New("Påminnelse: godkjenning av protokoll {{document}}", "{{", "}}")
	requestIntro    = fasttemplate.New("Styret ber om din godkjenning av protokollen {{document}}.", "{{", "}}")
	reminderIntro   = fasttemplate.New("Vi har ikke mottatt ditt svar på godkjenningen av protokollen {{document}}.", "{{", "}}")
)

// actionURL builds the callback link for one recipient.
func actionURL(base, batchID, token string, action Action) string {
	q := url.Values{}
	q.Set("gid", batchID)
	q.Set("token", token)
	q.Set("action", string(action))
	return strings.TrimRight(base, "/") + "/approval?" + q.Encode()
}

// buildMessage renders the request (or reminder) email for rec.
func buildMessage(publicURL string, rec Record, reminder bool) mail.Message {
	subjectTpl, introTpl := requestSubject, requestIntro
	if reminder {
		subjectTpl, introTpl = reminderSubject, reminderIntro
	}
	doc := map[string]interface{}{"document": rec.DocumentID}
	intro := introTpl.ExecuteString(doc)

	name := rec.Name
	if name == "" {
		name = rec.Email
	}
	approve := actionURL(publicURL, rec.BatchID, rec.Token, ActionApprove)
	reject := actionURL(publicURL, rec.BatchID, rec.Token, ActionReject)

	text := requestText.ExecuteString(map[string]interface{}{
		"name":         name,
		"intro":        intro,
		"document_url": rec.DocumentURL,
		"approve_url":  approve,
		"reject_url":   reject,
	})
	body := requestHTML.ExecuteString(map[string]interface{}{
		"name":         html.EscapeString(name),
		"intro":        html.EscapeString(intro),
		"document_url": html.EscapeString(rec.DocumentURL),
		"approve_url":  html.EscapeString(approve),
		"reject_url":   html.EscapeString(reject),
	})
	subject := subjectTpl.ExecuteString(doc)

	return mail.Message{
		To:      rec.Email,
		ToName:  rec.Name,
		Subject: subject,
		Text:    text,
		HTML:    body,
	}
}

func invalidRequest() Response {
	return Response{
		Outcome: OutcomeInvalidRequest,
		Title:   "Ugyldig forespørsel",
		Message: "Lenken mangler nødvendig informasjon eller har ugyldig handling.",
	}
}

func invalidLink() Response {
	return Response{
		Outcome: OutcomeInvalidLink,
		Title:   "Ugyldig lenke",
		Message: "Lenken er ugyldig eller finnes ikke lenger.",
	}
}

func alreadyProcessed(status Status) Response {
	return Response{
		Outcome: OutcomeAlreadyProcessed,
		Title:   "Allerede behandlet",
		Message: "Denne forespørselen er allerede behandlet (status: " + status.Label() + ").",
		Status:  status,
	}
}

func expired() Response {
	return Response{
		Outcome: OutcomeExpired,
		Title:   "Lenken er utløpt",
		Message: "Godkjenningslenken er utløpt. Kontakt styret for å få en ny lenke.",
		Status:  StatusSent,
	}
}

func superseded() Response {
	return Response{
		Outcome: OutcomeSuperseded,
		Title:   "Protokollen er sendt på nytt",
		Message: "Denne lenken gjelder en tidligere utsendelse. Bruk lenken i den nyeste e-posten fra styret.",
		Status:  StatusSent,
	}
}

func internalError() Response {
	return Response{
		Outcome: OutcomeError,
		Title:   "Noe gikk galt",
		Message: "Svaret ditt kunne ikke registreres. Prøv igjen senere.",
	}
}

func recorded(status Status, aggregate DocumentStatus) Response {
	msg := "Takk! Du har godkjent protokollen."
	if status == StatusRejected {
		msg = "Du har avvist protokollen. Styret får beskjed om svaret ditt."
	}
	return Response{
		Outcome:   OutcomeRecorded,
		Title:     "Svar registrert",
		Message:   msg,
		Status:    status,
		Aggregate: aggregate,
	}
}
