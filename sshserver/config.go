package sshserver

// Config defines SSH viewer settings.
type Config struct {
	Addr               string
	HostKeyPath        string
	AuthorizedKeysPath string
	// Example is loaded into every new viewer session.
	Example string
	// Source, when set, replaces the example program.
	Source string
	Theme  string
}
