package source

import "regexp"

// PRADO postback targets used by the marketplace search results page.
const (
	postbackPageSize = "ctl0$CONTENU_PAGE$resultSearch$listePageSizeTop"
	postbackNextPage = "ctl0$CONTENU_PAGE$resultSearch$PagerTop$ctl2"
	postbackValidate = "ctl0$CONTENU_PAGE$validateButton"
	postbackDownload = "ctl0$CONTENU_PAGE$EntrepriseDownloadDce$completeDownload"
	radioAnonymous   = "ctl0$CONTENU_PAGE$EntrepriseFormulaireDemande$choixAnonyme"
	radioGroup       = "ctl0$CONTENU_PAGE$EntrepriseFormulaireDemande$RadioGroup"
)

var (
	// linkRegexp matches consultation detail links and captures the
	// consultation id and organization acronym.
	linkRegexp = regexp.MustCompile(`^https://www\.marches-publics\.gouv\.fr/app\.php/entreprise/consultation/(\d+)\?orgAcronyme=([\da-z]+)$`)

	// pageStateRegexp captures the PRADO_PAGESTATE token carried between
	// postbacks.
	pageStateRegexp = regexp.MustCompile(`name="PRADO_PAGESTATE" id="PRADO_PAGESTATE" value="([a-zA-Z0-9/+=]+)"`)

	// attachmentRegexp captures the file name from a Content-Disposition
	// header; the site quotes it inconsistently across link kinds.
	attachmentRegexp = regexp.MustCompile(`^attachment; filename="?([^";]+)"?;?`)
)
