package dto

type TwoFACodeRequest struct {
	Code     string `json:"code"`
	IsBackup bool   `json:"isBackupCode"`
}

type TwoFASetupResponse struct {
	Success     bool     `json:"success"`
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

type TwoFAVerifyResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type TwoFAStatusResponse struct {
	Success          bool `json:"success"`
	Enabled          bool `json:"enabled"`
	BackupCodesCount int  `json:"backup_codes_count"`
}
