package irc

// Numeric replies consumed by the handler registry.
const (
	// connection registration
	rplWelcome  = "001"
	rplYourhost = "002"
	rplCreated  = "003"
	rplMyinfo   = "004"
	rplIsupport = "005"

	// server statistics and admin info
	rplUmodeis       = "221"
	rplLuserclient   = "251"
	rplLuserop       = "252"
	rplLuserunknown  = "253"
	rplLuserchannels = "254"
	rplLuserme       = "255"
	rplAdminme       = "256"
	rplAdminloc1     = "257"
	rplAdminloc2     = "258"
	rplAdminemail    = "259"
	rplLocalusers    = "265"
	rplGlobalusers   = "266"

	// away status
	rplAway    = "301"
	rplUnaway  = "305"
	rplNowaway = "306"

	// WHOIS / WHOWAS / WHO
	rplWhoisuser       = "311"
	rplWhoisserver     = "312"
	rplWhoisoperator   = "313"
	rplWhowasuser      = "314"
	rplEndofwho        = "315"
	rplWhoisidle       = "317"
	rplEndofwhois      = "318"
	rplWhoischannels   = "319"
	rplWhoisaccount    = "330"
	rplWhoreply        = "352"
	rplWhospecialreply = "354"
	rplEndofwhowas     = "369"
	rplWhoissecure     = "671"

	// channel state
	rplListstart     = "321"
	rplList          = "322"
	rplListend       = "323"
	rplChannelmodeis = "324"
	rplCreationTime  = "329"
	rplNotopic       = "331"
	rplTopic         = "332"
	rplTopicwhotime  = "333"
	rplInviting      = "341"
	rplNamreply      = "353"
	rplEndofnames    = "366"
	rplBanlist       = "367"
	rplEndofbanlist  = "368"

	// server info
	rplVersion    = "351"
	rplLinks      = "364"
	rplEndoflinks = "365"
	rplInfo       = "371"
	rplMotd       = "372"
	rplEndofinfo  = "374"
	rplMotdstart  = "375"
	rplEndofmotd  = "376"
	rplYoureoper  = "381"
	rplTime       = "391"
	rplHostHidden = "396"

	// common errors
	errNosuchnick       = "401"
	errNosuchchannel    = "403"
	errCannotsendtochan = "404"
	errUnknowncommand   = "421"
	errNomotd           = "422"
	errNicknameinuse    = "433"
	errNotregistered    = "451"
	errNeedmoreparams   = "461"
	errPasswdmismatch   = "464"
	errChanoprivsneeded = "482"

	// MONITOR
	rplMononline     = "730"
	rplMonoffline    = "731"
	errMonlistisfull = "734"

	// SASL
	rplLoggedin    = "900"
	rplLoggedout   = "901"
	errNicklocked  = "902"
	rplSaslsuccess = "903"
	errSaslfail    = "904"
	errSasltoolong = "905"
	errSaslaborted = "906"
	errSaslalready = "907"
	rplSaslmechs   = "908"
)

// Standard-replies codes used by the draft/account-registration extension.
const (
	registerSuccess              = "SUCCESS"
	registerVerificationRequired = "VERIFICATION_REQUIRED"
)

// ReplySeverity returns the severity of an unrecognized numeric reply: 4xx,
// 5xx and 9xx numerics are failures, everything else is informational.
func ReplySeverity(reply string) Severity {
	if len(reply) == 3 && (reply[0] == '4' || reply[0] == '5' || reply[0] == '9') {
		return SeverityFail
	}
	return SeverityNote
}
