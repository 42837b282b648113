package contracts

// Source and Category definitions (SSOT)
// Every log line, stored row and config key uses these constants.
//
// Flow:
//   Scheduler → Adapter (limiter/breaker) → Normalizer → Store → Scoring

// Source identifies one external signal source. Each source has exactly one adapter.
type Source string

const (
	// SourceRepoActivity: public issue and pull request activity
	// Adapter: internal/external/github/
	SourceRepoActivity Source = "repo_activity"

	// SourceCommunity: public forum discussion
	// Adapter: internal/external/reddit/
	SourceCommunity Source = "community"

	// SourceJobPosting: open roles on the company's job board
	// Adapter: internal/external/greenhouse/
	SourceJobPosting Source = "job_posting"

	// SourceNews: news articles mentioning the company
	// Adapter: internal/external/newsapi/
	SourceNews Source = "news"

	// SourceTechStack: technologies detected on the company homepage
	// Adapter: internal/external/techstack/
	SourceTechStack Source = "tech_stack"
)

// String returns the source name
func (s Source) String() string {
	return string(s)
}

// AllSources returns every known source in a fixed order
func AllSources() []Source {
	return []Source{
		SourceRepoActivity,
		SourceCommunity,
		SourceJobPosting,
		SourceNews,
		SourceTechStack,
	}
}

// IsValidSource checks if a source string is known
func IsValidSource(s string) bool {
	for _, src := range AllSources() {
		if string(src) == s {
			return true
		}
	}
	return false
}

// Category groups signals for scoring. Weights and half-lives are configured per category.
type Category string

const (
	CategoryEngineeringActivity Category = "engineering_activity"
	CategoryCommunityDiscussion Category = "community_discussion"
	CategoryHiring              Category = "hiring"
	CategoryNewsMention         Category = "news_mention"
	CategoryFundingEvent        Category = "funding_event"
	CategoryTechnology          Category = "technology"
)

// String returns the category name
func (c Category) String() string {
	return string(c)
}

// AllCategories returns every category adapters may emit
func AllCategories() []Category {
	return []Category{
		CategoryEngineeringActivity,
		CategoryCommunityDiscussion,
		CategoryHiring,
		CategoryNewsMention,
		CategoryFundingEvent,
		CategoryTechnology,
	}
}

// IsValidCategory checks if a category string is known
func IsValidCategory(s string) bool {
	for _, c := range AllCategories() {
		if string(c) == s {
			return true
		}
	}
	return false
}
