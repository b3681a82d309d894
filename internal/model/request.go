package model

type SSHConfig struct {
	ElasticIP   string `json:"elastic_ip" binding:"required"`
	User        string `json:"user"`
	SSHPort     int    `json:"ssh_port"`
	PEM         string `json:"pem,omitempty"`
	SSHPassword string `json:"ssh_password,omitempty"`
}

func (c *SSHConfig) PortOrDefault() int {
	if c.SSHPort <= 0 {
		return 22
	}
	return c.SSHPort
}

func (c *SSHConfig) UsesPEM() bool {
	return c.PEM != ""
}

type StackVars struct {
	UseInternalTLS *bool  `json:"use_internal_tls"`
	WGPublicHost   string `json:"wg_public_host" binding:"required"`
	WGPort         int    `json:"wg_port"`
	WGSubnet       string `json:"wg_subnet"`
	WGDNS          string `json:"wg_dns"`
	JWTSecret      string `json:"jwt_secret" binding:"required"`
	Timezone       string `json:"timezone"`
	S3Bucket       string `json:"s3_bucket"`
	AdminEmail     string `json:"admin_email,omitempty"`
	AdminPassword  string `json:"admin_password,omitempty"`
}

// ApplyDefaults fills the optional stack settings left empty by the caller.
func (v *StackVars) ApplyDefaults() {
	if v.UseInternalTLS == nil {
		on := true
		v.UseInternalTLS = &on
	}
	if v.WGPort <= 0 {
		v.WGPort = 51820
	}
	if v.WGSubnet == "" {
		v.WGSubnet = "10.13.13.0/24"
	}
	if v.WGDNS == "" {
		v.WGDNS = "1.1.1.1"
	}
	if v.Timezone == "" {
		v.Timezone = "Europe/Madrid"
	}
}

type InstallConfig struct {
	SSH           SSHConfig `json:"ssh" binding:"required"`
	Vars          StackVars `json:"vars"`
	AdminEmail    string    `json:"admin_email,omitempty"`
	AdminPassword string    `json:"admin_password,omitempty"`
	VaultPassword string    `json:"vault_password,omitempty"`
}

// RunRequest is the body of POST /install/run. Only the SSH section is
// read; the stack vars were already written by /install/config.
type RunRequest struct {
	SSH SSHConfig `json:"ssh" binding:"required"`
}

// WGQRCodeRequest describes a client config rendered as a QR code. Without a
// private key the config carries a placeholder the client fills in.
type WGQRCodeRequest struct {
	ServerIP      string `json:"server_ip" binding:"required"`
	ClientAddress string `json:"client_address,omitempty"`
	PrivateKey    string `json:"private_key,omitempty"`
}

type WGParamsRequest struct {
	PeerName      string `json:"peer_name" binding:"required"`
	PeerPublicKey string `json:"peer_public_key" binding:"required"`
	ServerHint    string `json:"server_hint" binding:"required"`
	SSHUser       string `json:"ssh_user,omitempty"`
	SSHPassword   string `json:"ssh_password,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type PeerCreateRequest struct {
	Name string `json:"name" binding:"required"`
}
