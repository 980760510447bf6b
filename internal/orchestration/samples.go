package orchestration

import (
	"strings"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
)

var buttonSample = generation.Payload{
	HTML: `<button class="cta-button">Click Me!</button>`,
	CSS: `.cta-button {
  background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
  color: white;
  border: none;
  padding: 16px 32px;
  font-size: 18px;
  font-weight: 600;
  border-radius: 12px;
  cursor: pointer;
  transition: transform 0.2s ease, box-shadow 0.2s ease;
  box-shadow: 0 4px 6px rgba(0, 0, 0, 0.1);
}

.cta-button:hover {
  transform: translateY(-2px);
  box-shadow: 0 6px 12px rgba(0, 0, 0, 0.15);
}

.cta-button:active {
  transform: translateY(0);
}`,
	JS: `document.querySelector('.cta-button').addEventListener('click', () => {
  alert('Button clicked!');
});`,
	Explanation: "Created a beautiful gradient button with hover effects and click handler.",
	Suggestions: []string{"Add more button variants", "Add loading state", "Add icon support"},
}

var landingSample = generation.Payload{
	HTML: `<div class="landing-page">
  <header class="hero">
    <h1 class="hero-title">Build Amazing Products</h1>
    <p class="hero-subtitle">The fastest way to create beautiful prototypes</p>
    <button class="cta-button">Get Started Free</button>
  </header>

  <section class="features">
    <div class="feature-card">
      <h3>Fast</h3>
      <p>Build prototypes in minutes, not hours</p>
    </div>
    <div class="feature-card">
      <h3>Beautiful</h3>
      <p>Modern designs that look professional</p>
    </div>
    <div class="feature-card">
      <h3>Easy</h3>
      <p>No coding required, just describe what you want</p>
    </div>
  </section>
</div>`,
	CSS: `:root {
  --primary: #667eea;
  --secondary: #764ba2;
}

* {
  margin: 0;
  padding: 0;
  box-sizing: border-box;
}

body {
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
}

.hero {
  background: linear-gradient(135deg, var(--primary) 0%, var(--secondary) 100%);
  color: white;
  padding: 120px 20px;
  text-align: center;
}

.hero-title {
  font-size: 3.5rem;
  font-weight: 700;
  margin-bottom: 24px;
}

.hero-subtitle {
  font-size: 1.5rem;
  margin-bottom: 48px;
  opacity: 0.9;
}

.cta-button {
  background: white;
  color: var(--primary);
  border: none;
  padding: 16px 48px;
  font-size: 18px;
  font-weight: 600;
  border-radius: 12px;
  cursor: pointer;
}

.features {
  display: grid;
  grid-template-columns: repeat(auto-fit, minmax(300px, 1fr));
  gap: 32px;
  padding: 80px 20px;
  max-width: 1200px;
  margin: 0 auto;
}

.feature-card {
  text-align: center;
  padding: 32px;
  border-radius: 12px;
  box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1);
}`,
	JS: `document.querySelector('.cta-button').addEventListener('click', () => {
  alert('Ready to get started!');
});`,
	Explanation: "Created a modern landing page with hero section and feature cards.",
	Suggestions: []string{"Add pricing section", "Add testimonials", "Add footer", "Add animations"},
}

// SamplePayload returns a built-in payload for mock runs: the landing page
// when the prompt mentions a landing page or page, the button otherwise.
func SamplePayload(prompt string) generation.Payload {
	sample := buttonSample
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "landing") || strings.Contains(lower, "page") {
		sample = landingSample
	}
	sample.Suggestions = append([]string(nil), sample.Suggestions...)
	return sample
}
