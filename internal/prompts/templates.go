package prompts

import "careerpilot/internal/plans"

// Built-in prompt templates. Every template instructs the model to answer
// with the shared JSON output shape so the runner can parse uniformly.

const outputContract = `Respond with a single JSON object:
{"title": "...", "summary": "...", "content": "...", "bullets": [], "warnings": [], "keywords_added": [], "next_actions": []}`

// DefaultTemplates returns the shipped template set.
func DefaultTemplates() []Template {
	return []Template{
		{
			Feature:  plans.FeatureJobMatch,
			Version:  "v1",
			Required: []string{"jd_text", "resume_text"},
			Text: `You are an expert career coach scoring how well a candidate matches a job.

Candidate profile:
{profile}

Job description:
{jd_text}

Resume:
{resume_text}

Keyword overlap between resume and job description: {keyword_overlap}

Score the match from 0-100 in the title, summarize strengths and gaps, and list concrete improvements as bullets.
` + outputContract,
		},
		{
			Feature:  plans.FeatureJobMatch,
			Version:  "v2",
			Required: []string{"jd_text", "resume_text"},
			Text: `You are an expert career coach scoring how well a candidate matches a job. Be blunt about gaps.

Candidate profile:
{profile}

Job description:
{jd_text}

Resume:
{resume_text}

Keyword overlap between resume and job description: {keyword_overlap}

Put "Match score: N/100" in the title. Summarize the three strongest signals and the three biggest gaps. Bullets must each name one concrete edit to the resume. List missing keywords in keywords_added.
` + outputContract,
		},
		{
			Feature:  plans.FeatureRecruiterLens,
			Version:  "v1",
			Required: []string{"jd_text", "resume_text"},
			Text: `You are a senior technical recruiter screening a resume against a role. Read it the way you would in a 30 second pass.

Job description:
{jd_text}

Resume:
{resume_text}

Say what stands out, what raises flags, and whether you would advance the candidate. Flags go in warnings.
` + outputContract,
		},
		{
			Feature:  plans.FeatureInterviewPack,
			Version:  "v1",
			Required: []string{"jd_text"},
			Text: `You are an interview coach preparing a candidate for this role.

Candidate profile:
{profile}

Job description:
{jd_text}

Resume:
{resume_text}

Produce likely interview questions as bullets, grouped from screening to deep technical, with a one-line hint each. Put preparation steps in next_actions.
` + outputContract,
		},
		{
			Feature:  plans.FeatureOutreach,
			Version:  "v1",
			Required: []string{"jd_text"},
			Text: `You are helping a candidate write a short, direct outreach message to the hiring manager for this role.

Candidate profile:
{profile}

Job description:
{jd_text}

Resume highlights:
{resume_text}

A past cover letter by the candidate, to match their voice (may be empty):
{cover_letter}

Write the message in content (under 150 words, no flattery), with subject line in title and two alternative openers as bullets.
` + outputContract,
		},
	}
}
