package core

import (
	"log"
	"os"
	"path/filepath"
)

const defaultLearnerProfile = `USER_PROFILE:
Name: Marketing Professional
Role: Marketing Director
Company_Type: Marketing/Communications Agency
Location: Global
Industry_Focus: Multi-client agency serving various industries

SUSTAINABILITY_TRAINING_PREFERENCES:
Experience_Level: Intermediate
Primary_Interest: Building team capability in sustainability communications
Company_Size: Small to medium agency
Target_Audience_for_Messages: Diverse client base across industries
Training_Goal: Capacitate team members on sustainability messaging compliance`

// LoadLearnerProfile reads the learner profile from the knowledge directory,
// probing a few locations so deployments with different working directories
// still find it. Falls back to the built-in default profile.
func LoadLearnerProfile(knowledgeDir string) string {
	candidates := []string{
		filepath.Join(knowledgeDir, "user_preference.txt"),
		filepath.Join(".", "knowledge", "user_preference.txt"),
		filepath.Join("..", "knowledge", "user_preference.txt"),
	}
	for _, path := range candidates {
		if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
			return string(b)
		}
	}
	log.Printf("[PIPELINE] Warning: user_preference.txt not found, using defaults")
	return defaultLearnerProfile
}
