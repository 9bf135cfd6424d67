package blueprint

import "regexp"

const maxHostnameLength = 253

var hostnameRegexp = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

func validateHostname(hostname string) error {
	if !hostnameRegexp.MatchString(hostname) || len(hostname) > maxHostnameLength {
		return stageErrf(StageConstruct, "%q is not a valid hostname. Hostnames must only "+
			"contain lowercase characters, numbers and hyphens, and cannot start or "+
			"end with a hyphen. For example, \"my-hostname2\" is a valid hostname, "+
			"but \"-my-hostname\", \"my_hostname\" and \"MyHostname\" are not", hostname)
	}
	return nil
}
