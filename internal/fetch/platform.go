package fetch

import (
	"net/url"
	"strings"
)

// Platform is a known applicant tracking system hosting job postings.
type Platform string

const (
	PlatformGreenhouse      Platform = "greenhouse"
	PlatformLever           Platform = "lever"
	PlatformWorkday         Platform = "workday"
	PlatformAshby           Platform = "ashby"
	PlatformSmartRecruiters Platform = "smartrecruiters"
	PlatformUnknown         Platform = "unknown"
)

var platformHosts = []struct {
	platform Platform
	suffixes []string
}{
	{PlatformGreenhouse, []string{"greenhouse.io"}},
	{PlatformLever, []string{"lever.co"}},
	{PlatformWorkday, []string{"workday.com", "myworkdayjobs.com"}},
	{PlatformAshby, []string{"ashbyhq.com"}},
	{PlatformSmartRecruiters, []string{"smartrecruiters.com"}},
}

// DetectPlatform identifies the hosting platform of a job posting URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(parsed.Hostname())
	for _, p := range platformHosts {
		for _, suffix := range p.suffixes {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return p.platform
			}
		}
	}
	return PlatformUnknown
}

// PlatformContentSelectors returns content selectors for a platform, most specific first.
func PlatformContentSelectors(platform Platform) []string {
	switch platform {
	case PlatformGreenhouse:
		return []string{".job__description.body", ".job__description", ".job-description__content", "#content", ".job-post-container"}
	case PlatformLever:
		return []string{".posting-page", ".section-wrapper.page-full-width", ".posting-description", ".content"}
	case PlatformWorkday:
		return []string{"[data-automation-id='jobDescription']", ".job-description"}
	case PlatformAshby:
		return []string{".ashby-job-posting-right-pane", "[class*='descriptionText']", "main"}
	case PlatformSmartRecruiters:
		return []string{".job-sections", "[itemprop='description']", "main"}
	default:
		return JobPostingSelectors()
	}
}

// commonNoise covers application forms, EEO text, share widgets and consent banners.
var commonNoise = []string{
	"form",
	"#application-form",
	".application-form",
	".apply-button-container",
	".voluntary-disclosure",
	".eeo-statement",
	".eeo-section",
	".legal-disclosure",
	".social-share",
	".share-buttons",
	".cookie-consent",
	".gdpr-notice",
}

// PlatformNoiseSelectors returns selectors removed before extraction for a platform.
func PlatformNoiseSelectors(platform Platform) []string {
	out := append([]string(nil), commonNoise...)
	switch platform {
	case PlatformGreenhouse:
		out = append(out, ".application--wrapper", ".voluntary-self-id", "#usa_self_id_section", ".post-apply")
	case PlatformLever:
		out = append(out, ".apply-section", ".posting-apply")
	case PlatformWorkday:
		out = append(out, "[data-automation-id='applyButton']", ".application-section")
	case PlatformAshby:
		out = append(out, ".ashby-application-form-container")
	}
	return out
}
