package capability

import (
	"time"

	"github.com/target/mmk-investigations/internal/domain/model"
)

// Categories used by the built-in catalog.
const (
	CategorySocial   = "social"
	CategoryUsername = "username"
	CategoryDomain   = "domain"
	CategoryEmail    = "email"
	CategoryBreach   = "breach"
	CategoryPhone    = "phone"
	CategoryNetwork  = "network"
	CategoryCrypto   = "crypto"
	CategoryImage    = "image"
	CategoryGeneric  = "generic"
)

// Catalog returns the built-in capability descriptors without executors. Bootstrap binds
// an executor and the configured timeout to each entry before registering it.
func Catalog() []Descriptor {
	username := []model.TargetField{model.TargetUsername}
	domain := []model.TargetField{model.TargetDomain}
	email := []model.TargetField{model.TargetEmail}

	return []Descriptor{
		{
			Name:              "tiktok-profile-analyzer",
			Category:          CategorySocial,
			Description:       "TikTok profile, videos and follower statistics",
			Tags:              []Tag{PlatformTag("tiktok")},
			Accepts:           username,
			Priority:          1,
			EstimatedDuration: 20 * time.Second,
			Timeout:           30 * time.Second,
		},
		{
			Name:              "instagram-profile-analyzer",
			Category:          CategorySocial,
			Description:       "Instagram profile, posts and follower statistics",
			Tags:              []Tag{PlatformTag("instagram")},
			Accepts:           username,
			Priority:          1,
			EstimatedDuration: 20 * time.Second,
			Timeout:           30 * time.Second,
		},
		{
			Name:              "twitter-profile-analyzer",
			Category:          CategorySocial,
			Description:       "Twitter/X profile and network analysis",
			Tags:              []Tag{PlatformTag("twitter"), PlatformTag("x")},
			Accepts:           username,
			Priority:          1,
			EstimatedDuration: 20 * time.Second,
			Timeout:           30 * time.Second,
		},
		{
			Name:              "youtube-channel-analyzer",
			Category:          CategorySocial,
			Description:       "YouTube channel metadata and upload history",
			Tags:              []Tag{PlatformTag("youtube")},
			Accepts:           username,
			Priority:          1,
			EstimatedDuration: 25 * time.Second,
			Timeout:           45 * time.Second,
		},
		{
			Name:              "sherlock",
			Category:          CategoryUsername,
			Description:       "Search a username across 400+ social networks",
			Tags:              []Tag{TypeTag(model.RequestTypeProfile), TypeTag(model.RequestTypePerson)},
			Accepts:           username,
			Priority:          1,
			EstimatedDuration: 30 * time.Second,
			Timeout:           45 * time.Second,
		},
		{
			Name:              "maigret",
			Category:          CategoryUsername,
			Description:       "Username search on 2000+ sites",
			Tags:              []Tag{TypeTag(model.RequestTypeProfile), TypeTag(model.RequestTypePerson)},
			Accepts:           username,
			MinDepth:          model.DepthDeep,
			Priority:          2,
			EstimatedDuration: 90 * time.Second,
			Timeout:           2 * time.Minute,
		},
		{
			Name:              "hashtag-tracker",
			Category:          CategorySocial,
			Description:       "Cross-platform hashtag usage and top posters",
			Tags:              []Tag{TypeTag(model.RequestTypeHashtag)},
			Accepts:           []model.TargetField{model.TargetHashtag},
			Priority:          1,
			EstimatedDuration: 30 * time.Second,
			Timeout:           45 * time.Second,
		},
		{
			Name:              "whois",
			Category:          CategoryDomain,
			Description:       "Domain registration and DNS information",
			Tags:              []Tag{TypeTag(model.RequestTypeDomain)},
			Accepts:           domain,
			Priority:          1,
			EstimatedDuration: 5 * time.Second,
			Timeout:           15 * time.Second,
		},
		{
			Name:              "sublist3r",
			Category:          CategoryDomain,
			Description:       "Subdomain enumeration",
			Tags:              []Tag{TypeTag(model.RequestTypeDomain)},
			Accepts:           domain,
			Priority:          2,
			EstimatedDuration: 45 * time.Second,
			Timeout:           60 * time.Second,
		},
		{
			Name:              "subfinder",
			Category:          CategoryDomain,
			Description:       "Passive subdomain enumeration",
			Tags:              []Tag{TypeTag(model.RequestTypeDomain)},
			Accepts:           domain,
			MinDepth:          model.DepthDeep,
			Priority:          2,
			EstimatedDuration: 30 * time.Second,
			Timeout:           60 * time.Second,
		},
		{
			Name:              "theharvester",
			Category:          CategoryEmail,
			Description:       "Emails, hosts and subdomains from public sources",
			Tags:              []Tag{TypeTag(model.RequestTypeDomain)},
			Accepts:           domain,
			Priority:          3,
			EstimatedDuration: 45 * time.Second,
			Timeout:           60 * time.Second,
		},
		{
			Name:              "holehe",
			Category:          CategoryEmail,
			Description:       "Check whether an email is registered on 120+ sites",
			Tags:              []Tag{TypeTag(model.RequestTypeEmail), TypeTag(model.RequestTypePerson)},
			Accepts:           email,
			Priority:          1,
			EstimatedDuration: 20 * time.Second,
			Timeout:           30 * time.Second,
		},
		{
			Name:              "h8mail",
			Category:          CategoryBreach,
			Description:       "Search an email in breach corpora",
			Tags:              []Tag{TypeTag(model.RequestTypeEmail), TypeTag(model.RequestTypePerson)},
			Accepts:           email,
			MinDepth:          model.DepthDeep,
			Priority:          2,
			EstimatedDuration: 40 * time.Second,
			Timeout:           60 * time.Second,
		},
		{
			Name:              "phoneinfoga",
			Category:          CategoryPhone,
			Description:       "Phone number carrier and footprint lookup",
			Tags:              []Tag{TypeTag(model.RequestTypePhone), TypeTag(model.RequestTypePerson)},
			Accepts:           []model.TargetField{model.TargetPhone},
			Priority:          1,
			EstimatedDuration: 15 * time.Second,
			Timeout:           30 * time.Second,
		},
		{
			Name:              "shodan",
			Category:          CategoryNetwork,
			Description:       "Exposed services and known vulnerabilities",
			Tags:              []Tag{TypeTag(model.RequestTypeNetwork)},
			Accepts:           []model.TargetField{model.TargetIPAddress, model.TargetDomain},
			Priority:          1,
			EstimatedDuration: 15 * time.Second,
			Timeout:           30 * time.Second,
		},
		{
			Name:              "blockchain-tracer",
			Category:          CategoryCrypto,
			Description:       "Cryptocurrency address balance and transaction graph",
			Tags:              []Tag{TypeTag(model.RequestTypeCrypto)},
			Accepts:           []model.TargetField{model.TargetBitcoinAddress, model.TargetEthereumAddress},
			Priority:          1,
			EstimatedDuration: 20 * time.Second,
			Timeout:           45 * time.Second,
		},
		{
			Name:              "exifread",
			Category:          CategoryImage,
			Description:       "EXIF metadata extraction",
			Tags:              []Tag{TypeTag(model.RequestTypeImage)},
			Accepts:           []model.TargetField{model.TargetImageURL},
			Priority:          1,
			EstimatedDuration: 5 * time.Second,
			Timeout:           20 * time.Second,
		},
		{
			Name:              "web-footprint",
			Category:          CategoryGeneric,
			Description:       "Search-engine footprint for any target value",
			Tags:              []Tag{TagGeneric},
			Priority:          9,
			EstimatedDuration: 15 * time.Second,
			Timeout:           30 * time.Second,
		},
	}
}
