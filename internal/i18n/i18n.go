// Package i18n provides the message catalog for the login surface and the
// navigation header.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
)

// Message keys used by this module.
const (
	KeyWelcome                 = "welcome"
	KeyGoogleSuccess           = "login_google_success"
	KeyGoogleFailed            = "login_google_failed"
	KeyLoginFailed             = "login_failed"
	KeyLoginNoUserData         = "login_no_user_data"
	KeyLoginMissingCredentials = "login_missing_credentials"
	KeyMissingClientID         = "missing_client_id"
	KeyProviderUnavailable     = "provider_login_unavailable"
	KeyLogin                   = "login"
	KeyLogout                  = "logout"
	KeyRoleGuest               = "role_guest"
	KeyRoleStudent             = "role_student"
	KeyRoleCompany             = "role_company"
	KeyRoleStaff               = "role_staff"
	KeyRoleAdmin               = "role_admin"
	KeyNavHome                 = "home"
	KeyNavKnowledge            = "nav_knowledge"
	KeyNavQA                   = "nav_qa"
	KeyNavRAGDocs              = "nav_rag_docs"
	KeyNavOJTDocs              = "nav_ojt_docs"
	KeyNavDashboard            = "nav_dashboard"
	KeyNavAdmin                = "nav_admin"
	KeyNavCompany              = "nav_company"
	KeyEmail                   = "email"
	KeyPassword                = "password"
	KeyLoginGoogle             = "login_google"
	KeySignedInAs              = "signed_in_as"
)

var catalogs = map[language.Tag]map[string]string{
	language.English: {
		KeyWelcome:                 "Welcome, %s!",
		KeyGoogleSuccess:           "Signed in with Google.",
		KeyGoogleFailed:            "Google sign-in failed.",
		KeyLoginFailed:             "Login failed.",
		KeyLoginNoUserData:         "Login failed: no user data.",
		KeyLoginMissingCredentials: "Please enter your email and password.",
		KeyMissingClientID:         "Missing Google Client ID.",
		KeyProviderUnavailable:     "Google sign-in is currently unavailable.",
		KeyLogin:                   "Login",
		KeyLogout:                  "Logout",
		KeyRoleGuest:               "Guest",
		KeyRoleStudent:             "Student",
		KeyRoleCompany:             "Company",
		KeyRoleStaff:               "Staff",
		KeyRoleAdmin:               "Admin",
		KeyNavHome:                 "Home",
		KeyNavKnowledge:            "Knowledge",
		KeyNavQA:                   "Q&A",
		KeyNavRAGDocs:              "RAGdocs-Manage",
		KeyNavOJTDocs:              "OJT Docs",
		KeyNavDashboard:            "Dashboard",
		KeyNavAdmin:                "Admin",
		KeyNavCompany:              "Company",
		KeyEmail:                   "Email",
		KeyPassword:                "Password",
		KeyLoginGoogle:             "Sign in with Google",
		KeySignedInAs:              "Signed in as %s",
	},
	language.Vietnamese: {
		KeyWelcome:                 "Chào mừng, %s!",
		KeyGoogleSuccess:           "Đăng nhập Google thành công.",
		KeyGoogleFailed:            "Đăng nhập Google thất bại.",
		KeyLoginFailed:             "Đăng nhập thất bại.",
		KeyLoginNoUserData:         "Đăng nhập thất bại: không có dữ liệu người dùng.",
		KeyLoginMissingCredentials: "Vui lòng nhập email và mật khẩu.",
		KeyMissingClientID:         "Thiếu Google Client ID.",
		KeyProviderUnavailable:     "Đăng nhập Google hiện không khả dụng.",
		KeyLogin:                   "Đăng nhập",
		KeyLogout:                  "Đăng xuất",
		KeyRoleGuest:               "Khách",
		KeyRoleStudent:             "Sinh viên",
		KeyRoleCompany:             "Doanh nghiệp",
		KeyRoleStaff:               "Nhân viên",
		KeyRoleAdmin:               "Quản trị",
		KeyNavHome:                 "Trang chủ",
		KeyNavKnowledge:            "Kiến thức",
		KeyNavQA:                   "Hỏi đáp",
		KeyNavRAGDocs:              "Quản lý RAGdocs",
		KeyNavOJTDocs:              "Tài liệu OJT",
		KeyNavDashboard:            "Bảng điều khiển",
		KeyNavAdmin:                "Quản trị",
		KeyNavCompany:              "Doanh nghiệp",
		KeyEmail:                   "Email",
		KeyPassword:                "Mật khẩu",
		KeyLoginGoogle:             "Đăng nhập bằng Google",
		KeySignedInAs:              "Đã đăng nhập: %s",
	},
	language.Japanese: {
		KeyWelcome:                 "ようこそ、%sさん！",
		KeyGoogleSuccess:           "Googleでログインしました。",
		KeyGoogleFailed:            "Googleログインに失敗しました。",
		KeyLoginFailed:             "ログインに失敗しました。",
		KeyLoginNoUserData:         "ログインに失敗しました: ユーザーデータがありません。",
		KeyLoginMissingCredentials: "メールアドレスとパスワードを入力してください。",
		KeyMissingClientID:         "Google Client IDがありません。",
		KeyProviderUnavailable:     "Googleログインは現在利用できません。",
		KeyLogin:                   "ログイン",
		KeyLogout:                  "ログアウト",
		KeyRoleGuest:               "ゲスト",
		KeyRoleStudent:             "学生",
		KeyRoleCompany:             "企業",
		KeyRoleStaff:               "スタッフ",
		KeyRoleAdmin:               "管理者",
		KeyNavHome:                 "ホーム",
		KeyNavKnowledge:            "ナレッジ",
		KeyNavQA:                   "Q&A",
		KeyNavRAGDocs:              "RAGdocs管理",
		KeyNavOJTDocs:              "OJT資料",
		KeyNavDashboard:            "ダッシュボード",
		KeyNavAdmin:                "管理",
		KeyNavCompany:              "企業",
		KeyEmail:                   "メールアドレス",
		KeyPassword:                "パスワード",
		KeyLoginGoogle:             "Googleでログイン",
		KeySignedInAs:              "%sとしてログイン中",
	},
}

// English is first so the matcher falls back to it.
var matcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Vietnamese,
	language.Japanese,
})

// Catalog looks up messages for one negotiated language.
type Catalog struct {
	tag      language.Tag
	messages map[string]string
}

// New negotiates the best supported language for the given preferences
// (BCP 47 tags or Accept-Language values) and returns its catalog.
func New(prefs ...string) *Catalog {
	_, idx := language.MatchStrings(matcher, prefs...)
	tags := []language.Tag{language.English, language.Vietnamese, language.Japanese}
	tag := tags[idx]
	return &Catalog{tag: tag, messages: catalogs[tag]}
}

// Lang returns the negotiated language tag, e.g. "vi".
func (c *Catalog) Lang() string {
	base, _ := c.tag.Base()
	return base.String()
}

// T returns the message for key. Missing keys fall back to English and then
// to the key itself. Arguments are applied with fmt.Sprintf.
func (c *Catalog) T(key string, args ...any) string {
	msg, ok := c.messages[key]
	if !ok {
		msg, ok = catalogs[language.English][key]
	}
	if !ok {
		msg = key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}
